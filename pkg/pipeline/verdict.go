package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Decision is the validator's ruling on a draft.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionRevise  Decision = "revise"
)

// Reasons attached to fail-closed verdicts.
const (
	ReasonInvalidJSON    = "Validator returned non-JSON or invalid JSON."
	ReasonUnknownVerdict = "Validator returned an unrecognized verdict."
)

// Verdict is the structured result of auditing one draft. It is immutable:
// construct it with ParseVerdict or FailClosed.
type Verdict struct {
	decision    Decision
	finalAnswer string
	reasons     []string
	rawOutput   string
	failClosed  bool
}

// Decision returns approve or revise.
func (v Verdict) Decision() Decision { return v.decision }

// Approved reports whether the draft was approved as-is.
func (v Verdict) Approved() bool { return v.decision == DecisionApprove }

// FinalAnswer returns the validator's replacement answer. It is ignored when
// the draft is approved.
func (v Verdict) FinalAnswer() string { return v.finalAnswer }

// Reasons returns a copy of the validator's reasons, in order.
func (v Verdict) Reasons() []string {
	out := make([]string, len(v.reasons))
	copy(out, v.reasons)
	return out
}

// RawOutput returns the unparsed validator response.
func (v Verdict) RawOutput() string { return v.rawOutput }

// FailedClosed reports whether the verdict was forced because the validator
// output could not be trusted.
func (v Verdict) FailedClosed() bool { return v.failClosed }

// MarshalJSON renders the verdict for diagnostics.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Decision    Decision `json:"decision"`
		FinalAnswer string   `json:"final_answer"`
		Reasons     []string `json:"reasons"`
		RawOutput   string   `json:"raw_output"`
		FailClosed  bool     `json:"fail_closed,omitempty"`
	}{v.decision, v.finalAnswer, v.Reasons(), v.rawOutput, v.failClosed})
}

// FailClosed builds the safe verdict: revise, answering FallbackAnswer.
func FailClosed(raw, reason string) Verdict {
	return Verdict{
		decision:    DecisionRevise,
		finalAnswer: FallbackAnswer,
		reasons:     []string{reason},
		rawOutput:   raw,
		failClosed:  true,
	}
}

// wireVerdict is the JSON object the validator is instructed to emit. Pointer
// fields distinguish absent from empty.
type wireVerdict struct {
	Verdict     *string   `json:"verdict"`
	FinalAnswer *string   `json:"final_answer"`
	Reasons     *[]string `json:"reasons"`
}

var errTrailingData = errors.New("trailing data after JSON object")

func decodeWireVerdict(raw string) (wireVerdict, error) {
	var w wireVerdict

	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return w, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return w, errTrailingData
	}

	return w, nil
}

// ParseVerdict strictly decodes a validator response. It never fails: any
// output that is not a well-formed verdict object, or whose verdict is not
// exactly "approve" or "revise" (case-insensitive), yields FailClosed. Fields
// other than verdict, final_answer and reasons are ignored.
func ParseVerdict(raw string) Verdict {
	w, err := decodeWireVerdict(raw)
	if err != nil {
		return FailClosed(raw, ReasonInvalidJSON)
	}

	var decision Decision
	if w.Verdict != nil {
		decision = Decision(strings.ToLower(*w.Verdict))
	}
	if decision != DecisionApprove && decision != DecisionRevise {
		v := FailClosed(raw, ReasonUnknownVerdict)
		if w.Reasons != nil {
			v.reasons = append(v.reasons, (*w.Reasons)...)
		}
		return v
	}

	v := Verdict{
		decision:  decision,
		reasons:   []string{},
		rawOutput: raw,
	}
	if w.FinalAnswer != nil {
		v.finalAnswer = *w.FinalAnswer
	}
	if w.Reasons != nil {
		v.reasons = append(v.reasons, (*w.Reasons)...)
	}

	// A revision with nothing to say must not reach the user as an empty answer.
	if decision == DecisionRevise && strings.TrimSpace(v.finalAnswer) == "" {
		v.finalAnswer = FallbackAnswer
	}

	return v
}

// SelectAnswer picks the answer shown to the end user: the draft verbatim when
// approved, otherwise the validator's final answer.
func SelectAnswer(draft string, v Verdict) string {
	if v.Approved() {
		return draft
	}
	return v.FinalAnswer()
}
