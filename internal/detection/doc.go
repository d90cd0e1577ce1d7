// Package detection proposes icon-sized regions in diagram images and resolves
// overlapping detections.
//
// # Region Proposals
//
// Propose combines three independent heuristics, none of them learned:
//
//   - Edge contours: Canny edges grouped into 8-connected contours; the outer
//     contour of each icon yields its bounding box
//   - Stable blobs: connected regions that keep nearly the same area across a
//     sweep of binarization thresholds (maximally stable extremal regions)
//   - Sliding grid: fixed-size windows at a fixed stride, so every part of the
//     image is covered even when the other heuristics miss an icon
//
// Edge and blob boxes are filtered by area to bias toward icon-sized regions.
// The grid ignores the area bounds. Large images are downscaled before
// proposing, and boxes are mapped back to source coordinates.
//
// Proposals overlap heavily by construction. Deduplication is the job of
// Suppress, which runs after scoring.
//
// # Suppression
//
// Suppress is classic greedy non-maximum suppression over scored boxes, with
// ties broken by discovery order so results are deterministic.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - A Box covers [X, X+W) × [Y, Y+H)
//
// # Performance Considerations
//
// The blob sweep labels the whole image twice per threshold level, which
// dominates proposal time. MaxSize bounds the work for large inputs; raising
// BlobDelta trades recall for speed.
package detection
