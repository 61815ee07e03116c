package selection

import "github.com/radutopala/oneassist/internal/vectorstore"

// matchHistorical looks for a scored candidate whose tool already
// answered a similar query. Precedent is an independent high-confidence
// path: it can promote a candidate the gate would have sent to
// evaluation. Candidates are tried in scored order, so the best
// corroborated one wins.
func matchHistorical(candidates []Candidate, pairs []vectorstore.ContextPair) (*Candidate, *vectorstore.ContextPair) {
	for i := range candidates {
		id := candidates[i].Descriptor.ID
		for j := range pairs {
			if pairs[j].ToolID != nil && *pairs[j].ToolID == id {
				return &candidates[i], &pairs[j]
			}
		}
	}
	return nil, nil
}
