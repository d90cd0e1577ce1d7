// Package ocr reads short text captions from image crops using Tesseract.
//
// The labeler uses it as a weak signal: an icon crop that also carries a
// short caption is more likely a labeled service icon than a stray shape.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system, since
// gosseract links against libtesseract:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// # Supported Languages
//
// The default language is English ("eng"). Other languages can be specified
// using their Tesseract language codes:
//   - "eng" - English
//   - "deu" - German
//   - "kor" - Korean
//   - See Tesseract documentation for full list
//
// # Performance Considerations
//
// OCR is the slowest signal in the pipeline. Crops are encoded to PNG in
// memory and handed to a fresh client per call; no temporary files are
// written. Small crops are upscaled to Config.MinHeight first.
package ocr
