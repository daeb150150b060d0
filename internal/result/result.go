package result

import (
	"errors"
	"sort"

	"github.com/liuscraft/orion-speech/internal/transport"
)

// MaxCandidates 最终结果最多保留的候选数
const MaxCandidates = 5

var ErrNoResult = errors.New("result: no candidates")

type Gender int

const (
	Male   Gender = 0
	Female Gender = 1
)

func (g Gender) String() string {
	if g == Female {
		return "female"
	}
	return "male"
}

// RecognizedResult is an immutable final result, most confident first.
type RecognizedResult struct {
	results []string
	gender  Gender
}

func NewRecognizedResult(results []string, gender Gender) RecognizedResult {
	cp := make([]string, len(results))
	copy(cp, results)
	return RecognizedResult{results: cp, gender: gender}
}

// Results returns a copy of the candidate texts.
func (r RecognizedResult) Results() []string {
	cp := make([]string, len(r.results))
	copy(cp, r.results)
	return cp
}

// Best returns the most confident candidate.
func (r RecognizedResult) Best() string {
	if len(r.results) == 0 {
		return ""
	}
	return r.results[0]
}

func (r RecognizedResult) Gender() Gender {
	return r.gender
}

// Aggregator 汇总服务端消息，Final 时按置信度降序输出最多 5 个候选
type Aggregator struct {
	candidates []transport.Candidate
	partial    string
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Partial records a partial transcript and returns it for pass-through.
func (a *Aggregator) Partial(msg transport.Message) string {
	a.partial = msg.Text
	return a.partial
}

// LastPartial returns the most recent partial transcript.
func (a *Aggregator) LastPartial() string {
	return a.partial
}

// Add accumulates candidates without finalizing.
func (a *Aggregator) Add(candidates ...transport.Candidate) {
	for _, c := range candidates {
		if c.Text == "" {
			continue
		}
		a.candidates = append(a.candidates, c)
	}
}

// Final merges the final message's candidates and builds the result.
func (a *Aggregator) Final(msg transport.Message) (RecognizedResult, error) {
	a.Add(msg.Candidates...)
	if len(a.candidates) == 0 {
		return RecognizedResult{}, ErrNoResult
	}

	ranked := make([]transport.Candidate, len(a.candidates))
	copy(ranked, a.candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	if len(ranked) > MaxCandidates {
		ranked = ranked[:MaxCandidates]
	}

	texts := make([]string, len(ranked))
	for i, c := range ranked {
		texts[i] = c.Text
	}
	gender := Male
	if msg.Gender == int(Female) {
		gender = Female
	}
	return NewRecognizedResult(texts, gender), nil
}
