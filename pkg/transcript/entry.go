// Package transcript records each answered question as a chain of merkle
// nodes for later auditing. Transcripts are diagnostics: nothing in the
// pipeline reads them back.
package transcript

import (
	"github.com/papercomputeco/verity/pkg/pipeline"
)

// Kind identifies which step of a request a node records.
type Kind string

const (
	KindContext  Kind = "context"
	KindQuestion Kind = "question"
	KindDraft    Kind = "draft"
	KindVerdict  Kind = "verdict"
	KindAnswer   Kind = "answer"
)

// Known reports whether k is one of the transcript kinds.
func (k Kind) Known() bool {
	switch k {
	case KindContext, KindQuestion, KindDraft, KindVerdict, KindAnswer:
		return true
	}
	return false
}

// Entry is the content of one transcript node.
type Entry struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text,omitempty"`

	// Set on question nodes so the same question under different settings
	// branches instead of merging.
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Set on verdict nodes.
	Verdict *VerdictRecord `json:"verdict,omitempty"`
}

// VerdictRecord is the stored form of a pipeline.Verdict.
type VerdictRecord struct {
	Decision    pipeline.Decision `json:"decision"`
	FinalAnswer string            `json:"final_answer"`
	Reasons     []string          `json:"reasons"`
	RawOutput   string            `json:"raw_output"`
	FailClosed  bool              `json:"fail_closed,omitempty"`
}

func newVerdictRecord(v pipeline.Verdict) *VerdictRecord {
	return &VerdictRecord{
		Decision:    v.Decision(),
		FinalAnswer: v.FinalAnswer(),
		Reasons:     v.Reasons(),
		RawOutput:   v.RawOutput(),
		FailClosed:  v.FailedClosed(),
	}
}

// Transcript is a decoded chain, root first.
type Transcript struct {
	Head        string         `json:"head"`
	Context     string         `json:"context"`
	Question    string         `json:"question"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Draft       string         `json:"draft,omitempty"`
	Verdict     *VerdictRecord `json:"verdict,omitempty"`
	Answer      string         `json:"answer,omitempty"`

	// Complete is true when the chain ends in an answer node.
	Complete bool `json:"complete"`
}
