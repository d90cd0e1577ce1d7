package index

import (
	"errors"
	"math"
	"testing"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

func testItems() []ReferenceItem {
	return []ReferenceItem{
		{SourcePath: "a.png", RawLabel: "Amazon EC2", Vector: []float32{1, 0, 0}},
		{SourcePath: "b.png", RawLabel: "Amazon S3", Vector: []float32{0, 2, 0}},
		{SourcePath: "c.png", RawLabel: "AWS Lambda", Vector: []float32{1, 1, 0}},
		{SourcePath: "d.png", RawLabel: "Amazon SQS", Vector: []float32{0, 0, 3}},
	}
}

func TestNew(t *testing.T) {
	ix, err := New(testItems(), "test-model")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if ix.Len() != 4 || ix.Dim() != 3 || ix.ModelID() != "test-model" {
		t.Errorf("got %s", ix)
	}
	for i, it := range ix.Items() {
		if it.ID != i {
			t.Errorf("item %d has ID %d", i, it.ID)
		}
		var sum float64
		for _, x := range it.Vector {
			sum += float64(x) * float64(x)
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("item %d norm² = %f, want 1", i, sum)
		}
	}
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	items := testItems()
	ix, err := New(items, "m")
	if err != nil {
		t.Fatal(err)
	}
	items[0].Vector[0] = -5
	it, _ := ix.Item(0)
	if it.Vector[0] != 1 {
		t.Errorf("index vector changed with input: %v", it.Vector)
	}
	it.Vector[0] = 42
	again, _ := ix.Item(0)
	if again.Vector[0] != 1 {
		t.Error("Item returned a shared vector")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name  string
		items []ReferenceItem
	}{
		{"empty", nil},
		{"zero vector", []ReferenceItem{{Vector: []float32{0, 0}}}},
		{"empty vector", []ReferenceItem{{Vector: nil}}},
		{"dimension mismatch", []ReferenceItem{
			{Vector: []float32{1, 0}},
			{Vector: []float32{1, 0, 0}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := New(tt.items, "m")
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("New() error = %v, want ErrConfiguration", err)
			}
			if ix != nil {
				t.Error("New returned an index on error")
			}
		})
	}
}

func TestSearch(t *testing.T) {
	ix, err := New(testItems(), "m")
	if err != nil {
		t.Fatal(err)
	}

	hits := ix.Search([]float32{2, 0, 0}, 3)
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].Label != "Amazon EC2" || math.Abs(hits[0].Similarity-1) > 1e-6 {
		t.Errorf("top hit = %+v", hits[0])
	}
	if hits[1].Label != "AWS Lambda" || math.Abs(hits[1].Similarity-1/math.Sqrt2) > 1e-6 {
		t.Errorf("second hit = %+v", hits[1])
	}
	// S3 and SQS tie at 0; index order decides.
	if hits[2].Label != "Amazon S3" {
		t.Errorf("third hit = %+v, want Amazon S3", hits[2])
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("hits not sorted at %d", i)
		}
	}
}

func TestSearch_Bounds(t *testing.T) {
	ix, err := New(testItems(), "m")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		vec  []float32
		k    int
		want int
	}{
		{"k larger than index", []float32{1, 0, 0}, 10, 4},
		{"k zero", []float32{1, 0, 0}, 0, 0},
		{"wrong dimension", []float32{1, 0}, 3, 0},
		{"zero query", []float32{0, 0, 0}, 3, 0},
		{"nan query", []float32{float32(math.NaN()), 0, 0}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ix.Search(tt.vec, tt.k); len(got) != tt.want {
				t.Errorf("Search() returned %d hits, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSearch_NilIndex(t *testing.T) {
	var ix *Index
	if hits := ix.Search([]float32{1}, 1); hits != nil {
		t.Errorf("nil index returned %v", hits)
	}
	if ix.Len() != 0 {
		t.Error("nil index Len != 0")
	}
}

func TestSearch_SimilarityRange(t *testing.T) {
	ix, err := New([]ReferenceItem{
		{Vector: []float32{0.1, 0.2, 0.3}},
		{Vector: []float32{-0.1, -0.2, -0.3}},
	}, "m")
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range ix.Search([]float32{0.1, 0.2, 0.3}, 2) {
		if h.Similarity < -1 || h.Similarity > 1 {
			t.Errorf("similarity %f out of range", h.Similarity)
		}
	}
}

func TestNormalize(t *testing.T) {
	v, ok := Normalize([]float32{3, 4})
	if !ok || math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3 4]) = %v, %v", v, ok)
	}
	if _, ok := Normalize([]float32{0, 0}); ok {
		t.Error("zero vector normalized")
	}
	if _, ok := Normalize(nil); ok {
		t.Error("nil vector normalized")
	}
}
