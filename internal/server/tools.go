package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// regionSchema describes an optional pixel rectangle argument.
func regionSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x1": map[string]interface{}{"type": "integer"},
			"y1": map[string]interface{}{"type": "integer"},
			"x2": map[string]interface{}{"type": "integer"},
			"y2": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Labeling
		{
			Name:        "autolabel_analyze_image",
			Description: "Detect and label service icons in an architecture diagram. Returns one detection per icon with its pixel box [x, y, w, h], canonical label, group and scores.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the diagram image",
					},
					"reload": map[string]interface{}{
						"type":        "boolean",
						"description": "Re-read the image from disk instead of the server cache. Default false",
						"default":     false,
					},
					"min_confidence": map[string]interface{}{
						"type":        "number",
						"description": "Optional filter: drop detections whose blended confidence is below this. Default 0",
						"default":     0.0,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "autolabel_analyze_batch",
			Description: "Analyze several diagrams. Returns one result per path in input order plus summary statistics. A failing image yields a result with an error and does not stop the batch.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths to the diagram images",
					},
				},
				"required": []string{"paths"},
			},
		},

		// Inspection
		{
			Name:        "autolabel_propose_regions",
			Description: "List the candidate regions the labeler would score for an image, in discovery order, with the proposal source (edge, blob or grid) of each.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the diagram image",
					},
					"reload": map[string]interface{}{
						"type":        "boolean",
						"description": "Re-read the image from disk instead of the server cache. Default false",
						"default":     false,
					},
					"source": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"edge", "blob", "grid"},
						"description": "Optional: only return candidates from this source",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of candidates to return. Default 200",
						"default":     200,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "autolabel_search_references",
			Description: "Embed an image (or a region of it) and return the most similar reference icons with cosine similarity.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image",
					},
					"reload": map[string]interface{}{
						"type":        "boolean",
						"description": "Re-read the image from disk instead of the server cache. Default false",
						"default":     false,
					},
					"region": regionSchema("Optional region to crop before searching"),
					"k": map[string]interface{}{
						"type":        "integer",
						"description": "Number of references to return. Default 5",
						"default":     5,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "autolabel_normalize_label",
			Description: "Map a raw service name (file name stem, alias, abbreviation) to its canonical name using the loaded taxonomy.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"label": map[string]interface{}{
						"type":        "string",
						"description": "Raw label, e.g. \"Arch_Amazon-EC2_48\" or \"ddb\"",
					},
				},
				"required": []string{"label"},
			},
		},
		{
			Name:        "autolabel_index_info",
			Description: "Describe the loaded reference index: size, embedding model, dimension and icon count per category.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
