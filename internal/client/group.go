package client

import "httprpc/internal/trace"

// spanGroup is the slice of a flushed batch sharing one originating span
type spanGroup struct {
	span  *trace.Span
	calls []*call
}

// groupBySpan partitions calls by span identity, keeping first-seen order of
// spans and call order within each group.
func groupBySpan(calls []*call) []spanGroup {
	index := make(map[*trace.Span]int)
	groups := make([]spanGroup, 0, 1)

	for _, c := range calls {
		span := c.scope.Span()
		i, ok := index[span]
		if !ok {
			i = len(groups)
			index[span] = i
			groups = append(groups, spanGroup{span: span})
		}
		groups[i].calls = append(groups[i].calls, c)
	}

	return groups
}
