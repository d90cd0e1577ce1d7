// Package server implements the MCP (Model Context Protocol) server for the
// icon labeler.
//
// This package provides a JSON-RPC 2.0 server that exposes diagram labeling
// through the MCP protocol, so assistants and other MCP clients can ask for
// the cloud services drawn in an architecture diagram.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Labeling:
//   - autolabel_analyze_image: Detect and label icons in one diagram
//   - autolabel_analyze_batch: Label several diagrams with summary statistics
//
// Inspection:
//   - autolabel_propose_regions: List candidate regions before scoring
//   - autolabel_search_references: Nearest reference icons for an image or region
//   - autolabel_normalize_label: Resolve a raw name through the taxonomy
//   - autolabel_index_info: Describe the loaded reference index
//
// # Image Caching
//
// Diagrams are decoded once per path and reused across tool calls, so
// proposing regions and then analyzing the same file costs one decode.
// The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32602 for bad arguments, -32000 for any other tool failure
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.Deps{Labeler: labeler, Embedder: embedder, Taxonomy: tax})
//	if err := srv.Run(ctx); err != nil {
//	    return err
//	}
package server
