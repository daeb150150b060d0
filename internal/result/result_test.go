package result

import (
	"errors"
	"testing"

	"github.com/liuscraft/orion-speech/internal/transport"
)

func TestAggregator_FinalOrdering(t *testing.T) {
	tests := []struct {
		name       string
		candidates []transport.Candidate
		want       []string
	}{
		{
			name:       "single",
			candidates: []transport.Candidate{{Text: "hello", Confidence: 0.5}},
			want:       []string{"hello"},
		},
		{
			name: "sorted by confidence",
			candidates: []transport.Candidate{
				{Text: "b", Confidence: 0.2},
				{Text: "a", Confidence: 0.9},
				{Text: "c", Confidence: 0.1},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "ties keep server order",
			candidates: []transport.Candidate{
				{Text: "first", Confidence: 0.5},
				{Text: "second", Confidence: 0.5},
			},
			want: []string{"first", "second"},
		},
		{
			name: "capped at five",
			candidates: []transport.Candidate{
				{Text: "1", Confidence: 0.1},
				{Text: "2", Confidence: 0.2},
				{Text: "3", Confidence: 0.3},
				{Text: "4", Confidence: 0.4},
				{Text: "5", Confidence: 0.5},
				{Text: "6", Confidence: 0.6},
				{Text: "7", Confidence: 0.7},
			},
			want: []string{"7", "6", "5", "4", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			res, err := agg.Final(transport.Message{Kind: transport.KindFinal, Candidates: tt.candidates, Gender: 1})
			if err != nil {
				t.Fatalf("Final() error = %v", err)
			}
			got := res.Results()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
			if res.Gender() != Female {
				t.Fatalf("expected female, got %s", res.Gender())
			}
			if res.Best() != tt.want[0] {
				t.Fatalf("Best() = %q", res.Best())
			}
		})
	}
}

func TestAggregator_NoCandidates(t *testing.T) {
	agg := NewAggregator()
	_, err := agg.Final(transport.Message{Kind: transport.KindFinal})
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestAggregator_AccumulatesAcrossMessages(t *testing.T) {
	agg := NewAggregator()
	agg.Add(transport.Candidate{Text: "early", Confidence: 0.3}, transport.Candidate{Text: ""})
	if p := agg.Partial(transport.Message{Text: "ear"}); p != "ear" || agg.LastPartial() != "ear" {
		t.Fatalf("partial not passed through: %q", p)
	}
	res, err := agg.Final(transport.Message{Candidates: []transport.Candidate{{Text: "late", Confidence: 0.8}}})
	if err != nil {
		t.Fatalf("Final() error = %v", err)
	}
	got := res.Results()
	if len(got) != 2 || got[0] != "late" || got[1] != "early" {
		t.Fatalf("unexpected results %v", got)
	}
	if res.Gender() != Male {
		t.Fatalf("expected default gender male, got %s", res.Gender())
	}
}

func TestRecognizedResultIsImmutable(t *testing.T) {
	src := []string{"a", "b"}
	res := NewRecognizedResult(src, Male)
	src[0] = "mutated"
	got := res.Results()
	got[1] = "changed"
	again := res.Results()
	if again[0] != "a" || again[1] != "b" {
		t.Fatalf("result was mutated through a shared slice: %v", again)
	}
}
