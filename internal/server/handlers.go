package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/detection"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "autolabel_analyze_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Bad arguments return code -32602; any other tool failure returns -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Labeling
	case "autolabel_analyze_image":
		return s.handleAnalyzeImage(ctx, args)
	case "autolabel_analyze_batch":
		return s.handleAnalyzeBatch(ctx, args)

	// Inspection
	case "autolabel_propose_regions":
		return s.handleProposeRegions(args)
	case "autolabel_search_references":
		return s.handleSearchReferences(ctx, args)
	case "autolabel_normalize_label":
		return s.handleNormalizeLabel(args)
	case "autolabel_index_info":
		return s.handleIndexInfo()

	default:
		return nil, fmt.Errorf("%w: unknown tool: %s", apperr.ErrValidation, name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, treating a missing object as empty.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// loadImage returns the image at path from the server cache. reload drops
// any cached copy first so edits on disk are seen.
func (s *Server) loadImage(path string, reload bool) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", apperr.ErrValidation)
	}
	if reload {
		s.cache.Evict(path)
	}
	if s.cache.Len() >= s.maxCache {
		s.cache.Clear()
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, apperr.Data(path, err)
	}
	return img, nil
}

func (s *Server) requireLabeler() error {
	if s.labeler == nil {
		return apperr.Configf("no reference index loaded")
	}
	return nil
}

// === Labeling Handlers ===

type analyzeImageArgs struct {
	Path          string  `json:"path"`
	MinConfidence float64 `json:"min_confidence"`
	Reload        bool    `json:"reload"`
}

func (s *Server) handleAnalyzeImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeImageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := s.requireLabeler(); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path, a.Reload)
	if err != nil {
		return nil, err
	}

	res, err := s.labeler.AnalyzeImageData(ctx, a.Path, img)
	if err != nil {
		return nil, err
	}
	if a.MinConfidence > 0 {
		kept := make([]pipeline.Detection, 0, len(res.Detections))
		for _, d := range res.Detections {
			if d.Confidence >= a.MinConfidence {
				kept = append(kept, d)
			}
		}
		res.Detections = kept
	}
	return res, nil
}

type analyzeBatchArgs struct {
	Paths []string `json:"paths"`
}

// BatchResult is the autolabel_analyze_batch response.
type BatchResult struct {
	Results []pipeline.AnalysisResult `json:"results"`
	Stats   pipeline.Stats            `json:"stats"`
}

func (s *Server) handleAnalyzeBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeBatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, fmt.Errorf("%w: paths is required", apperr.ErrValidation)
	}
	if err := s.requireLabeler(); err != nil {
		return nil, err
	}

	results := s.labeler.AnalyzeBatch(ctx, a.Paths)
	return &BatchResult{
		Results: results,
		Stats:   pipeline.Summarize(results),
	}, nil
}

// === Inspection Handlers ===

type proposeRegionsArgs struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Limit  int    `json:"limit"`
	Reload bool   `json:"reload"`
}

// RegionInfo is one proposed region.
type RegionInfo struct {
	BBox   [4]int `json:"bbox"`
	Source string `json:"source"`
	Order  int    `json:"order"`
}

// ProposeRegionsResult is the autolabel_propose_regions response.
type ProposeRegionsResult struct {
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Total    int            `json:"total"`
	BySource map[string]int `json:"by_source"`
	Regions  []RegionInfo   `json:"regions"`
}

func (s *Server) handleProposeRegions(args json.RawMessage) (interface{}, error) {
	var a proposeRegionsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Limit <= 0 {
		a.Limit = 200
	}
	switch detection.Source(a.Source) {
	case "", detection.SourceEdge, detection.SourceBlob, detection.SourceGrid:
	default:
		return nil, fmt.Errorf("%w: unknown source %q", apperr.ErrValidation, a.Source)
	}
	if err := s.requireLabeler(); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path, a.Reload)
	if err != nil {
		return nil, err
	}

	candidates, err := s.labeler.Candidates(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	out := &ProposeRegionsResult{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Total:    len(candidates),
		BySource: map[string]int{},
		Regions:  []RegionInfo{},
	}
	for _, c := range candidates {
		out.BySource[string(c.Source)]++
		if a.Source != "" && string(c.Source) != a.Source {
			continue
		}
		if len(out.Regions) < a.Limit {
			out.Regions = append(out.Regions, RegionInfo{
				BBox:   c.Box.Array(),
				Source: string(c.Source),
				Order:  c.Order,
			})
		}
	}
	return out, nil
}

type searchReferencesArgs struct {
	Path   string `json:"path"`
	Region *struct {
		X1 int `json:"x1"`
		Y1 int `json:"y1"`
		X2 int `json:"x2"`
		Y2 int `json:"y2"`
	} `json:"region,omitempty"`
	K      int  `json:"k"`
	Reload bool `json:"reload"`
}

// SearchResult is the autolabel_search_references response.
type SearchResult struct {
	ModelID string      `json:"model_id"`
	Hits    []index.Hit `json:"hits"`
}

func (s *Server) handleSearchReferences(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a searchReferencesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.K <= 0 {
		a.K = 5
	}
	if err := s.requireLabeler(); err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, apperr.Configf("no embedder configured")
	}
	img, err := s.loadImage(a.Path, a.Reload)
	if err != nil {
		return nil, err
	}

	if a.Region != nil {
		r := image.Rect(a.Region.X1, a.Region.Y1, a.Region.X2, a.Region.Y2).Add(img.Bounds().Min)
		img, err = imaging.Crop(img, r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
	}

	vec, err := s.embedder.Embed(ctx, img)
	if err != nil {
		return nil, apperr.Capability("embed", err)
	}
	ix := s.labeler.Index()
	hits := ix.Search(vec, a.K)
	if hits == nil {
		hits = []index.Hit{}
	}
	return &SearchResult{ModelID: ix.ModelID(), Hits: hits}, nil
}

type normalizeLabelArgs struct {
	Label string `json:"label"`
}

// NormalizeResult is the autolabel_normalize_label response.
type NormalizeResult struct {
	Input       string   `json:"input"`
	Canonical   string   `json:"canonical"`
	ServiceCode string   `json:"service_code,omitempty"`
	Confidence  float64  `json:"confidence"`
	Dropped     bool     `json:"dropped"`
	Aliases     []string `json:"aliases,omitempty"`
}

func (s *Server) handleNormalizeLabel(args json.RawMessage) (interface{}, error) {
	var a normalizeLabelArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Label == "" {
		return nil, fmt.Errorf("%w: label is required", apperr.ErrValidation)
	}
	if s.taxonomy == nil {
		return nil, apperr.Configf("no taxonomy loaded")
	}

	raw := a.Label
	if imaging.IsSupported(raw) {
		raw, _ = index.ParseIconName(raw)
	}
	name, conf := s.taxonomy.Resolve(raw)
	return &NormalizeResult{
		Input:       a.Label,
		Canonical:   name,
		ServiceCode: s.taxonomy.Code(name),
		Confidence:  conf,
		Dropped:     name == "",
		Aliases:     s.taxonomy.Aliases(name),
	}, nil
}

// CategoryCount is the number of references in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// IndexInfo is the autolabel_index_info response.
type IndexInfo struct {
	Items      int             `json:"items"`
	Dim        int             `json:"dim"`
	ModelID    string          `json:"model_id"`
	Categories []CategoryCount `json:"categories"`
	Taxonomy   int             `json:"taxonomy_names"`
}

func (s *Server) handleIndexInfo() (interface{}, error) {
	if err := s.requireLabeler(); err != nil {
		return nil, err
	}
	ix := s.labeler.Index()

	counts := map[string]int{}
	for _, it := range ix.Items() {
		counts[it.Category]++
	}
	cats := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		cats = append(cats, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Category < cats[j].Category })

	info := &IndexInfo{
		Items:      ix.Len(),
		Dim:        ix.Dim(),
		ModelID:    ix.ModelID(),
		Categories: cats,
	}
	if s.taxonomy != nil {
		info.Taxonomy = s.taxonomy.Len()
	}
	return info, nil
}
