// Package selection implements the hybrid pipeline that decides, per
// query, between invoking a tool and answering conversationally. Two
// vector searches run in parallel, a multi-factor scorer ranks the tool
// hits, and a confidence gate routes the top candidate past or into
// model evaluation.
package selection

import (
	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

// Outcome is one of the pipeline's four terminal states.
type Outcome string

const (
	// OutcomeDirectExecute runs the selected tool without further checks.
	OutcomeDirectExecute Outcome = "direct-execute"
	// OutcomeContextResponse answers conversationally using retrieved
	// past exchanges.
	OutcomeContextResponse Outcome = "context-response"
	// OutcomePlainResponse answers conversationally with no extra
	// grounding.
	OutcomePlainResponse Outcome = "plain-response"
	// OutcomeRejectEmpty is returned for blank input.
	OutcomeRejectEmpty Outcome = "reject-empty"
)

// Route records which decision path produced a direct-execute outcome.
type Route string

const (
	RouteBypass     Route = "bypass"
	RouteHistorical Route = "historical"
	RouteEvaluated  Route = "evaluated"
)

// Tier orders model evaluation attempts. It never skips the evaluator.
type Tier string

const (
	TierHigh     Tier = "high"
	TierStandard Tier = "standard"
	TierLow      Tier = "low"
)

// Scores breaks a candidate's combined score down by factor. Every
// factor is in [0, 1], so with weights summing to 1 the combined score
// is too.
type Scores struct {
	Semantic    float64
	Length      float64
	Description float64
	Keyword     float64
	Combined    float64
}

// Candidate is a scored tool hit.
type Candidate struct {
	Descriptor tools.Descriptor
	Distance   float64
	Scores     Scores
	Tier       Tier
	// Fallback marks candidates from the relaxed rescan. They may be
	// evaluated but never bypass.
	Fallback bool
}

// GateDecision is the confidence gate's ruling on the top candidate.
type GateDecision string

const (
	GateReject   GateDecision = "reject"
	GateBypass   GateDecision = "bypass-accept"
	GateEscalate GateDecision = "escalate"
)

// Degradation names a pipeline stage that failed and was recovered
// locally. Degradations never abort a turn.
type Degradation string

const (
	DegradedToolSearch    Degradation = "tool-search"
	DegradedMessageSearch Degradation = "message-search"
	DegradedEvaluation    Degradation = "evaluation"
)

// Result is the pipeline's complete decision for one query.
type Result struct {
	Outcome  Outcome
	Route    Route      // set when Outcome is direct-execute
	Selected *Candidate // set when Outcome is direct-execute

	// Candidates holds every scored candidate, best first, for
	// observability even when none was selected.
	Candidates []Candidate
	// Pairs holds the retrieved historical exchanges, most similar
	// first.
	Pairs []vectorstore.ContextPair
	// Verdict is the model's judgment when the evaluator ran: the
	// approved candidate's verdict, or the top candidate's when every
	// attempt was rejected.
	Verdict *llm.Verdict

	Degraded []Degradation
	Reason   string
}

// DegradedBy reports whether the given stage degraded during this turn.
func (r *Result) DegradedBy(stage Degradation) bool {
	for _, d := range r.Degraded {
		if d == stage {
			return true
		}
	}
	return false
}
