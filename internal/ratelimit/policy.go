// Package ratelimit throttles requests per (client, route) with fixed windows.
//
// Routes are matched exactly against the request path. A route with no entry
// in the Table is not limited at all. Counting is delegated to a Backend,
// either the in-process sharded table or Redis; when the backend fails or is
// too slow the Limiter admits the request and flags the decision as degraded.
package ratelimit

import (
	"sort"
	"time"

	"workflow-dashboard/internal/config"
)

// Policy allows MaxRequests per Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Table maps an exact route path to its policy.
type Table map[string]Policy

func TableFromConfig(routes map[string]config.RoutePolicy) Table {
	t := make(Table, len(routes))
	for route, p := range routes {
		if p.MaxRequests <= 0 || p.Window <= 0 {
			continue
		}
		t[route] = Policy{MaxRequests: p.MaxRequests, Window: p.Window}
	}
	return t
}

func (t Table) Lookup(route string) (Policy, bool) {
	p, ok := t[route]
	return p, ok
}

// Routes returns the limited routes in lexical order.
func (t Table) Routes() []string {
	out := make([]string, 0, len(t))
	for r := range t {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
