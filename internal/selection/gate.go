package selection

// Gate applies the hard distance ceiling and the bypass threshold to
// the top candidate. It is a pure function of the candidates and
// configuration: identical inputs always produce the same decision.
type Gate struct {
	distanceThreshold float64
	bypassScore       float64
}

// NewGate builds a gate with the given thresholds.
func NewGate(distanceThreshold, bypassScore float64) Gate {
	return Gate{distanceThreshold: distanceThreshold, bypassScore: bypassScore}
}

// Decide rules on the top candidate. Relaxed-rescan candidates were
// admitted under the looser ceiling, so that ceiling applies to them;
// they may escalate to evaluation but never bypass it.
func (g Gate) Decide(candidates []Candidate) GateDecision {
	if len(candidates) == 0 {
		return GateReject
	}

	top := candidates[0]

	ceiling := g.distanceThreshold
	if top.Fallback {
		ceiling = relaxedDistanceCeiling
	}
	if top.Distance > ceiling {
		return GateReject
	}

	if !top.Fallback && top.Scores.Combined >= g.bypassScore {
		return GateBypass
	}
	return GateEscalate
}
