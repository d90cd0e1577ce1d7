// Package imaging provides the low-level image operations the labeling
// pipeline is built on.
//
// This package implements decoding with a shared cache, Canny edge detection,
// cropping, downscaling and icon normalization. All operations work with
// standard Go image.Image types and use a coordinate system where (0,0) is at
// the top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive (top-left) and Max is exclusive (bottom-right)
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless and can be called concurrently on different images. Images
// returned from the cache are shared and must be treated as read-only.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Crop regions outside image bounds or empty
//   - File I/O errors during image loading
//   - Undecodable or zero-sized images
package imaging
