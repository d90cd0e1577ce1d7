package taxonomy

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"abc", "", 0},
		{"", "", 1},
		{"ab", "ba", 0.5},
		{"kitten", "sitting", 1 - 5.0/13.0},
	}
	for _, tt := range tests {
		if got := ratio(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ratio(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPartialRatio(t *testing.T) {
	if got := partialRatio("ec2", "amazon ec2"); got != 1 {
		t.Errorf("substring should score 1, got %f", got)
	}
	if got := partialRatio("amazon ec2", "ec2"); got != 1 {
		t.Errorf("argument order should not matter, got %f", got)
	}
	if got := partialRatio("", "ec2"); got != 0 {
		t.Errorf("empty string should score 0, got %f", got)
	}
}

func TestTokenRatios(t *testing.T) {
	if got := tokenSortRatio("storage simple", "simple storage"); got != 1 {
		t.Errorf("tokenSortRatio ignores order, got %f", got)
	}
	if got := tokenSetRatio("ec2", "amazon ec2"); got != 1 {
		t.Errorf("token subset should score 1, got %f", got)
	}
	if got := tokenSetRatio("red apple", "green pear"); got >= 1 {
		t.Errorf("disjoint token sets should score below 1, got %f", got)
	}
}

func TestWeightedRatio(t *testing.T) {
	if got := weightedRatio("", "ec2"); got != 0 {
		t.Errorf("empty query should score 0, got %f", got)
	}
	if got := weightedRatio("dynamodb", "dynamodb"); got != 1 {
		t.Errorf("identical strings should score 1, got %f", got)
	}
	close := weightedRatio("dynamo db", "amazon dynamodb")
	far := weightedRatio("dynamo db", "lambda")
	if close <= far {
		t.Errorf("similar name scored %f, unrelated %f", close, far)
	}
	if close < 0 || close > 1 {
		t.Errorf("score out of range: %f", close)
	}
}

func TestBestMatch(t *testing.T) {
	choices := []string{"amazon backup", "aws backup", "lambda"}

	got, score := bestMatch("backup", choices)
	if got != "amazon backup" {
		t.Errorf("bestMatch = %q, want the first of the tied choices", got)
	}
	if score <= 0 || score >= 1 {
		t.Errorf("score = %f, want in (0,1)", score)
	}

	if got, score := bestMatch("backup", nil); got != "" || score != 0 {
		t.Errorf("no choices: got (%q, %f)", got, score)
	}
}
