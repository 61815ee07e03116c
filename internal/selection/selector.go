package selection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

// maxToolSearchK caps the raw tool search regardless of catalog size.
const maxToolSearchK = 15

// Encoder turns query text into a vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// ToolSearcher is the tool index surface the selector needs.
type ToolSearcher interface {
	Search(vec []float32, k int) ([]vectorstore.ToolHit, error)
	Count() int
}

// PairRetriever is the message index surface the selector needs.
type PairRetriever interface {
	ContextPairs(ctx context.Context, vec []float32, maxPairs int, opts vectorstore.MessageSearchOptions) ([]vectorstore.ContextPair, error)
}

// ToolEvaluator is the model judgment the escalation path consults.
type ToolEvaluator interface {
	EvaluateTool(ctx context.Context, query string, candidate tools.Descriptor) (*llm.Verdict, error)
}

// Params carries the pipeline thresholds, mirrored from configuration.
type Params struct {
	DistanceThreshold float64
	MinSemanticScore  float64
	BypassScore       float64
	MinEvalConfidence float64
	Weights           Weights
	MaxCandidates     int
	MaxContextPairs   int
	ContextMinSim     float64
	ContextMaxAge     time.Duration
	SearchTimeout     time.Duration
	EvalTimeout       time.Duration
}

// Selector runs the full pipeline for one query: parallel search,
// scoring, gating, precedent matching, evaluation, and the decision
// matrix.
type Selector struct {
	encoder   Encoder
	tools     ToolSearcher
	messages  PairRetriever
	evaluator ToolEvaluator
	scorer    *Scorer
	gate      Gate
	params    Params
	logger    *slog.Logger
}

// NewSelector wires the pipeline. The scoring weights are validated
// here too, so a selector can never be built on a broken blend.
func NewSelector(encoder Encoder, toolIdx ToolSearcher, messageIdx PairRetriever, evaluator ToolEvaluator, params Params, logger *slog.Logger) (*Selector, error) {
	scorer, err := NewScorer(params.DistanceThreshold, params.MinSemanticScore, params.Weights, params.MaxCandidates, logger)
	if err != nil {
		return nil, err
	}

	return &Selector{
		encoder:   encoder,
		tools:     toolIdx,
		messages:  messageIdx,
		evaluator: evaluator,
		scorer:    scorer,
		gate:      NewGate(params.DistanceThreshold, params.BypassScore),
		params:    params,
		logger:    logger,
	}, nil
}

// Select decides how to answer the query. Degraded searches and an
// unreachable model never fail a turn; only a canceled context
// surfaces as an error.
func (s *Selector) Select(ctx context.Context, query string, currentConversation int64) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Outcome: OutcomeRejectEmpty, Reason: "empty query"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}

	vec, err := s.encoder.Encode(ctx, query)
	if err != nil {
		s.logger.Warn("Query embedding failed, conversational fallback", "error", err)
		res.Outcome = OutcomePlainResponse
		res.Degraded = append(res.Degraded, DegradedToolSearch, DegradedMessageSearch)
		res.Reason = "query could not be embedded"
		return res, nil
	}

	hits, pairs := s.searchBranches(ctx, vec, currentConversation, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Candidates = s.scorer.Score(query, hits)
	res.Pairs = pairs

	decision := s.gate.Decide(res.Candidates)
	s.logger.Debug("Confidence gate decided",
		"decision", decision, "candidates", len(res.Candidates), "pairs", len(res.Pairs))

	// 1. High-confidence bypass: no model call at all.
	if decision == GateBypass {
		res.Outcome = OutcomeDirectExecute
		res.Route = RouteBypass
		res.Selected = &res.Candidates[0]
		res.Reason = "high-confidence semantic match"
		return res, nil
	}

	// 2. Historical precedent beats evaluation as well.
	if cand, pair := matchHistorical(res.Candidates, res.Pairs); cand != nil {
		res.Outcome = OutcomeDirectExecute
		res.Route = RouteHistorical
		res.Selected = cand
		res.Reason = fmt.Sprintf("historical precedent: %s answered a similar query (similarity %.2f)",
			cand.Descriptor.Name, pair.Similarity)
		return res, nil
	}

	// 3. Model evaluation of the surviving candidates.
	if decision == GateEscalate && len(res.Candidates) > 0 {
		cand, verdict, evalErr := s.evaluate(ctx, query, res.Candidates)
		switch {
		case evalErr != nil:
			s.logger.Warn("Tool evaluation unavailable", "error", evalErr)
			res.Degraded = append(res.Degraded, DegradedEvaluation)
		case cand != nil:
			res.Outcome = OutcomeDirectExecute
			res.Route = RouteEvaluated
			res.Selected = cand
			res.Verdict = verdict
			res.Reason = "LLM-confirmed match"
			return res, nil
		default:
			res.Verdict = verdict
		}
	}

	// 4. Conversational, grounded in retrieved context.
	if len(res.Pairs) > 0 {
		res.Outcome = OutcomeContextResponse
		res.Reason = "related past exchanges retrieved"
		return res, nil
	}

	// 5. Plain conversational.
	res.Outcome = OutcomePlainResponse
	res.Reason = "no tool or context matched"
	return res, nil
}

// searchBranches runs the tool and message searches concurrently, each
// under its own timeout. A failed or timed out branch degrades to
// empty results and is recorded on the result.
func (s *Selector) searchBranches(ctx context.Context, vec []float32, currentConversation int64, res *Result) ([]vectorstore.ToolHit, []vectorstore.ContextPair) {
	var (
		hits    []vectorstore.ToolHit
		toolErr error
		pairs   []vectorstore.ContextPair
		pairErr error
	)

	p := pool.New().WithMaxGoroutines(2)
	p.Go(func() {
		branchCtx, cancel := context.WithTimeout(ctx, s.params.SearchTimeout)
		defer cancel()

		k := searchK(s.tools.Count())
		if k == 0 {
			return
		}
		hits, toolErr = s.tools.Search(vec, k)
		if toolErr == nil {
			toolErr = branchCtx.Err()
		}
	})
	p.Go(func() {
		branchCtx, cancel := context.WithTimeout(ctx, s.params.SearchTimeout)
		defer cancel()

		pairs, pairErr = s.messages.ContextPairs(branchCtx, vec, s.params.MaxContextPairs, vectorstore.MessageSearchOptions{
			ExcludeConversation: currentConversation,
			MinSimilarity:       s.params.ContextMinSim,
			MaxAge:              s.params.ContextMaxAge,
		})
	})
	p.Wait()

	if toolErr != nil {
		s.logger.Warn("Tool search degraded", "error", toolErr)
		res.Degraded = append(res.Degraded, DegradedToolSearch)
		hits = nil
	}
	if pairErr != nil {
		s.logger.Warn("Message search degraded", "error", pairErr)
		res.Degraded = append(res.Degraded, DegradedMessageSearch)
		pairs = nil
	}

	return hits, pairs
}

// evaluate tries candidates in scored order until the model approves
// one. The returned verdict belongs to the selected candidate, or to
// the top candidate when every attempt was rejected. One timeout
// covers the whole phase.
func (s *Selector) evaluate(ctx context.Context, query string, candidates []Candidate) (*Candidate, *llm.Verdict, error) {
	evalCtx, cancel := context.WithTimeout(ctx, s.params.EvalTimeout)
	defer cancel()

	var first *llm.Verdict
	for i := range candidates {
		verdict, err := s.evaluator.EvaluateTool(evalCtx, query, candidates[i].Descriptor)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = verdict
		}
		if verdict.Approved && verdict.Confidence >= s.params.MinEvalConfidence {
			return &candidates[i], verdict, nil
		}
	}
	return nil, first, nil
}

// searchK widens the raw search beyond the candidate cut so the scorer
// has enough hits to rank and the relaxed rescan has material left.
func searchK(toolCount int) int {
	k := 2 * toolCount
	if k > maxToolSearchK {
		k = maxToolSearchK
	}
	return k
}
