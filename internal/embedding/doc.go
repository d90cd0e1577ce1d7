// Package embedding turns images into fixed-length vectors for similarity
// search.
//
// Three implementations are provided:
//
//   - ClipEmbedder runs a CLIP image encoder exported to ONNX through the
//     onnxruntime shared library.
//   - DescriptorEmbedder is a pure-Go color and layout descriptor. It needs no
//     model files and is fully deterministic, which makes it the fallback when
//     no model is configured and the embedder used in tests.
//   - CachedEmbedder memoizes any embedder by image content.
//
// All embedders are safe for concurrent use. Vectors are not normalized;
// the index normalizes them.
package embedding
