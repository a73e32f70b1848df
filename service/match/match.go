// Package match exposes the gateway's read-only view of the match
// graph. The graph itself belongs to the application's persistence
// layer; the gateway only ever asks "who is this user matched with".
package match

import "context"

// Lookup resolves the set of external user IDs the given user has a
// confirmed mutual match with. Implementations must return an empty
// set, not an error, for unknown users so a single bad ID cannot abort
// a presence fan-out.
type Lookup interface {
	Matches(ctx context.Context, externalID string) ([]string, error)
}

// Static is a fixed in-memory match graph, used by the development
// profile and by tests.
type Static struct {
	graph map[string][]string
}

// NewStatic builds a Static from pair declarations. Pairs are entered
// symmetrically: declaring A-B makes B visible to A and A to B.
func NewStatic(pairs ...[2]string) *Static {
	s := &Static{graph: make(map[string][]string)}
	for _, p := range pairs {
		s.graph[p[0]] = append(s.graph[p[0]], p[1])
		s.graph[p[1]] = append(s.graph[p[1]], p[0])
	}
	return s
}

func (s *Static) Matches(_ context.Context, externalID string) ([]string, error) {
	out := make([]string, len(s.graph[externalID]))
	copy(out, s.graph[externalID])
	return out, nil
}
