// Package depsort orders a set of tables so that, for every foreign-key
// constraint T -> U, U appears before T. It also reports any edges that
// could not be satisfied so the Renderer/Orchestrator can defer those
// foreign keys to a later phase instead of inlining them.
package depsort

import (
	"sort"

	"dbbackup/internal/schema"
)

// Edge is one unsatisfied foreign-key dependency: the constraint on table
// From could not be placed before its referenced table To, because doing
// so would require breaking a cycle.
type Edge struct {
	From       string // table carrying the FK constraint
	To         string // table the FK references
	Constraint string // constraint name, if any
}

// Result is the Sorter's output: a create-order table list plus the set of
// FK edges that participate in a cycle and must be deferred.
type Result struct {
	Order      []*schema.Table
	CycleEdges []Edge
	HasCycles  bool
}

// Sort computes the create order for tables. Ties among tables with no
// remaining dependency are broken by name for determinism.
func Sort(tables []*schema.Table) Result {
	byName := make(map[string]*schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	// deps[t] = set of table names t depends on (must be created first).
	deps := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		deps[t.Name] = map[string]bool{}
		for _, c := range t.ForeignKeys() {
			if c.ReferencedTable == "" || c.ReferencedTable == t.Name {
				continue // self-reference: exempt from ordering
			}
			if _, known := byName[c.ReferencedTable]; !known {
				continue // FK to a table outside this set; nothing to order against
			}
			deps[t.Name][c.ReferencedTable] = true
		}
	}

	var ordered []*schema.Table
	placed := map[string]bool{}

	for len(placed) < len(tables) {
		var ready []string
		for name, want := range deps {
			if placed[name] {
				continue
			}
			if allSatisfied(want, placed) {
				ready = append(ready, name)
			}
		}

		if len(ready) == 0 {
			// Remaining tables form one or more cycles. Place all of them,
			// ordered by name, and report their unsatisfied edges.
			var remaining []string
			for name := range deps {
				if !placed[name] {
					remaining = append(remaining, name)
				}
			}
			sort.Strings(remaining)
			for _, name := range remaining {
				ordered = append(ordered, byName[name])
				placed[name] = true
			}
			edges := cycleEdges(remaining, byName, placed)
			return Result{Order: ordered, CycleEdges: edges, HasCycles: len(edges) > 0}
		}

		sort.Strings(ready)
		for _, name := range ready {
			ordered = append(ordered, byName[name])
			placed[name] = true
		}
	}

	return Result{Order: ordered}
}

func allSatisfied(want map[string]bool, placed map[string]bool) bool {
	for dep := range want {
		if !placed[dep] {
			return false
		}
	}
	return true
}

// cycleEdges reports the FK edges that must be deferred to break a detected
// cycle. A mutual pair (A references B and B references A) only needs one
// of the two FKs deferred to become satisfiable, so only the edge whose
// From table sorts alphabetically later is kept; the other is left to be
// inlined normally. Edges with no reverse counterpart in the cycle (a
// longer ring, e.g. A -> B -> C -> A) have no redundant direction to drop
// and are kept as-is.
func cycleEdges(cycleTables []string, byName map[string]*schema.Table, inCycle map[string]bool) []Edge {
	cycleSet := make(map[string]bool, len(cycleTables))
	for _, n := range cycleTables {
		cycleSet[n] = true
	}

	var raw []Edge
	for _, name := range cycleTables {
		t := byName[name]
		for _, c := range t.ForeignKeys() {
			if c.ReferencedTable == "" || c.ReferencedTable == t.Name {
				continue
			}
			if cycleSet[c.ReferencedTable] {
				raw = append(raw, Edge{From: t.Name, To: c.ReferencedTable, Constraint: c.Name})
			}
		}
	}

	type pairKey struct{ a, b string }
	grouped := make(map[pairKey][]Edge, len(raw))
	var keys []pairKey
	for _, e := range raw {
		k := pairKey{e.From, e.To}
		if e.From > e.To {
			k = pairKey{e.To, e.From}
		}
		if _, seen := grouped[k]; !seen {
			keys = append(keys, k)
		}
		grouped[k] = append(grouped[k], e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})

	var edges []Edge
	for _, k := range keys {
		group := grouped[k]
		if len(group) == 1 {
			edges = append(edges, group[0])
			continue
		}
		// Mutual pair: keep the edge whose From sorts alphabetically later.
		best := group[0]
		for _, e := range group[1:] {
			if e.From > best.From {
				best = e
			}
		}
		edges = append(edges, best)
	}
	return edges
}

// ReverseOrder returns order reversed, for DROP TABLE emission in the
// reverse of the create order.
func ReverseOrder(order []*schema.Table) []*schema.Table {
	out := make([]*schema.Table, len(order))
	for i, t := range order {
		out[len(order)-1-i] = t
	}
	return out
}
