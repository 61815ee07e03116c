package selection

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/radutopala/oneassist/internal/vectorstore"
)

const (
	// relaxedDistanceCeiling bounds the rescan that runs when the
	// strict pass yields no candidates.
	relaxedDistanceCeiling = 1.2

	tierHighThreshold     = 0.8
	tierStandardThreshold = 0.6
)

// Weights blend the four scoring factors. They must sum to 1; NewScorer
// rejects anything else rather than renormalizing.
type Weights struct {
	Semantic    float64
	Length      float64
	Description float64
	Keyword     float64
}

// DefaultWeights is the standard blend: semantic similarity dominates,
// length matching is secondary, description depth and keyword overlap
// refine the ranking.
var DefaultWeights = Weights{Semantic: 0.50, Length: 0.25, Description: 0.15, Keyword: 0.10}

// Scorer ranks tool search hits with the multi-factor blend.
type Scorer struct {
	distanceThreshold float64
	minSemantic       float64
	weights           Weights
	maxCandidates     int
	logger            *slog.Logger
}

// NewScorer validates the thresholds and weights before the pipeline
// can run on them.
func NewScorer(distanceThreshold, minSemantic float64, weights Weights, maxCandidates int, logger *slog.Logger) (*Scorer, error) {
	sum := weights.Semantic + weights.Length + weights.Description + weights.Keyword
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("scoring weights must sum to 1.0, got %.6f", sum)
	}
	if distanceThreshold <= 0 {
		return nil, fmt.Errorf("distance threshold must be positive, got %v", distanceThreshold)
	}
	if minSemantic < 0 || minSemantic > 1 {
		return nil, fmt.Errorf("minimum semantic score must be in [0, 1], got %v", minSemantic)
	}
	if maxCandidates < 1 {
		return nil, fmt.Errorf("max candidates must be at least 1, got %d", maxCandidates)
	}

	return &Scorer{
		distanceThreshold: distanceThreshold,
		minSemantic:       minSemantic,
		weights:           weights,
		maxCandidates:     maxCandidates,
		logger:            logger,
	}, nil
}

// Score ranks the hits. When the strict pass drops everything, a
// relaxed rescan runs so the evaluator still gets material to judge.
func (s *Scorer) Score(query string, hits []vectorstore.ToolHit) []Candidate {
	candidates := s.strictPass(query, hits)
	if len(candidates) == 0 && len(hits) > 0 {
		candidates = s.relaxedPass(hits)
		if len(candidates) > 0 {
			s.logger.Debug("Relaxed rescan produced candidates", "count", len(candidates))
		}
	}
	return candidates
}

func (s *Scorer) strictPass(query string, hits []vectorstore.ToolHit) []Candidate {
	queryTokens := len(strings.Fields(query))
	queryWords := wordSet(query)

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		distance := float64(hit.Distance)
		if distance > s.distanceThreshold {
			continue
		}

		semantic := math.Max(0, 1-distance/s.distanceThreshold)
		if semantic < s.minSemantic {
			continue
		}

		sc := Scores{
			Semantic:    semantic,
			Length:      lengthScore(queryTokens, hit.Descriptor.ExampleTokens()),
			Description: descriptionFactor(hit.Descriptor.DescriptionTokens(), queryTokens),
			Keyword:     keywordBonus(queryWords, hit.Descriptor.ExampleWords()),
		}
		sc.Combined = s.weights.Semantic*sc.Semantic +
			s.weights.Length*sc.Length +
			s.weights.Description*sc.Description +
			s.weights.Keyword*sc.Keyword

		candidates = append(candidates, Candidate{
			Descriptor: hit.Descriptor,
			Distance:   distance,
			Scores:     sc,
			Tier:       tierFor(sc.Combined),
		})
	}

	sortCandidates(candidates)
	if len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}

	// The semantic floor holds after truncation too.
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Scores.Semantic >= s.minSemantic {
			kept = append(kept, c)
		}
	}
	return kept
}

// relaxedPass rescans under a looser ceiling with half the semantic
// floor. Combined score is semantic alone, so these candidates rank in
// the low tier and never bypass.
func (s *Scorer) relaxedPass(hits []vectorstore.ToolHit) []Candidate {
	floor := s.minSemantic / 2

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		distance := float64(hit.Distance)
		if distance > relaxedDistanceCeiling {
			continue
		}

		semantic := math.Max(0, 1-distance/relaxedDistanceCeiling)
		if semantic < floor {
			continue
		}

		candidates = append(candidates, Candidate{
			Descriptor: hit.Descriptor,
			Distance:   distance,
			Scores:     Scores{Semantic: semantic, Combined: semantic},
			Tier:       TierLow,
			Fallback:   true,
		})
	}

	sortCandidates(candidates)
	if len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}
	return candidates
}

// lengthScore rewards queries whose token count sits near the tool's
// example token count. The ratio is clamped to [0.33, 3] so extreme
// mismatches bottom out at zero instead of going negative.
func lengthScore(queryTokens, exampleTokens int) float64 {
	ratio := float64(queryTokens) / math.Max(1, float64(exampleTokens))
	clamped := math.Min(3.0, math.Max(0.33, ratio))
	return 1 - math.Abs(1-clamped)/2
}

// descriptionFactor treats a documentation-rich tool as a safer match
// than a bare one.
func descriptionFactor(descriptionTokens, queryTokens int) float64 {
	return math.Min(1, float64(descriptionTokens)/math.Max(1, float64(queryTokens)))
}

// keywordBonus measures literal overlap between query words and the
// tool's example queries.
func keywordBonus(queryWords, exampleWords map[string]struct{}) float64 {
	if len(queryWords) == 0 {
		return 0
	}

	overlap := 0
	for w := range queryWords {
		if _, ok := exampleWords[w]; ok {
			overlap++
		}
	}
	return 0.2 * float64(overlap) / float64(len(queryWords))
}

func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		words[w] = struct{}{}
	}
	return words
}

func tierFor(combined float64) Tier {
	switch {
	case combined >= tierHighThreshold:
		return TierHigh
	case combined >= tierStandardThreshold:
		return TierStandard
	default:
		return TierLow
	}
}

// sortCandidates orders by combined score descending, then distance
// ascending, then name ascending, so ranking is reproducible across
// runs.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Scores.Combined != b.Scores.Combined {
			return a.Scores.Combined > b.Scores.Combined
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Descriptor.Name < b.Descriptor.Name
	})
}
