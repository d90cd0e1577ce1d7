package pipeline

import (
	"sort"

	"github.com/ironsheep/icon-autolabel/internal/scoring"
)

// Detection is one labeled icon in an analyzed image.
type Detection struct {
	// BBox is [x, y, w, h] in image pixels.
	BBox     [4]int `json:"bbox"`
	Label    string `json:"label"`
	RawLabel string `json:"raw_label"`
	// ServiceCode is the taxonomy's short code for Label, if it has one.
	ServiceCode string `json:"service_code,omitempty"`
	Group       string `json:"group,omitempty"`
	// Score is the fused score; it is at least the acceptance threshold.
	Score float64 `json:"score"`
	// NormalizationConfidence is the taxonomy confidence for Label.
	NormalizationConfidence float64 `json:"normalization_confidence"`
	// Confidence blends Score and NormalizationConfidence for display.
	Confidence    float64            `json:"confidence"`
	Components    scoring.Components `json:"components"`
	Source        string             `json:"source"`
	ReferencePath string             `json:"reference_path"`
}

// AnalysisResult is the outcome for one image. Detections are ordered by
// descending Score and never nil for a successful analysis.
type AnalysisResult struct {
	ImagePath  string      `json:"image_path"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
	// Error is the reason a batch item failed; empty on success.
	Error string `json:"error,omitempty"`
	// ProcessingTime is in seconds.
	ProcessingTime float64 `json:"processing_time"`
}

// Failed reports whether the image could not be analyzed.
func (r AnalysisResult) Failed() bool {
	return r.Error != ""
}

// LabelCount is the number of detections of one label across a batch.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes a batch.
type Stats struct {
	Images          int     `json:"images"`
	Failed          int     `json:"failed"`
	Detections      int     `json:"detections"`
	ImagesWithHits  int     `json:"images_with_detections"`
	DetectionRate   float64 `json:"detection_rate"`
	MeanDetections  float64 `json:"mean_detections"`
	MeanProcessTime float64 `json:"mean_processing_time"`
	MeanConfidence  float64 `json:"mean_confidence"`
	// Labels is sorted by descending count, then label.
	Labels []LabelCount `json:"labels"`
}

// Summarize computes batch statistics. Failed images count toward Images
// and Failed only; rates and means are over successful images.
func Summarize(results []AnalysisResult) Stats {
	st := Stats{Images: len(results), Labels: []LabelCount{}}
	counts := make(map[string]int)
	var timeSum, confSum float64
	for _, r := range results {
		if r.Failed() {
			st.Failed++
			continue
		}
		timeSum += r.ProcessingTime
		if len(r.Detections) > 0 {
			st.ImagesWithHits++
		}
		for _, d := range r.Detections {
			st.Detections++
			confSum += d.Confidence
			counts[d.Label]++
		}
	}

	ok := st.Images - st.Failed
	if ok > 0 {
		st.DetectionRate = float64(st.ImagesWithHits) / float64(ok)
		st.MeanDetections = float64(st.Detections) / float64(ok)
		st.MeanProcessTime = timeSum / float64(ok)
	}
	if st.Detections > 0 {
		st.MeanConfidence = confSum / float64(st.Detections)
	}

	for label, n := range counts {
		st.Labels = append(st.Labels, LabelCount{Label: label, Count: n})
	}
	sort.Slice(st.Labels, func(i, j int) bool {
		if st.Labels[i].Count != st.Labels[j].Count {
			return st.Labels[i].Count > st.Labels[j].Count
		}
		return st.Labels[i].Label < st.Labels[j].Label
	})
	return st
}
