// Package schema describes the set of replicated tables and derives the
// parent-before-child order used when applying change batches.
package schema

import "sort"

// Row is the contract every replicated entity satisfies, normally by
// embedding models.Base.
type Row interface {
	RowID() int64
	SetRowID(id int64)
	RowVersion() int
	SetRowVersion(v int)
	RowSummary() map[string]any
}

// Codec is implemented once per replicated entity type. It names the table,
// declares its foreign-key parents and allocates empty rows for the store to
// scan into; the wire shape of a row is the entity's JSON encoding.
type Codec interface {
	Table() string
	Parents() []string
	New() Row
}

// Graph holds the registered codecs and the apply order computed from their
// parent declarations.
type Graph struct {
	codecs map[string]Codec
	order  []string
	cyclic []string
}

func NewGraph(codecs ...Codec) *Graph {
	g := &Graph{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		g.codecs[c.Table()] = c
	}
	g.order, g.cyclic = topoOrder(g.codecs)
	return g
}

func (g *Graph) Codec(table string) (Codec, bool) {
	c, ok := g.codecs[table]
	return c, ok
}

// Order returns every registered table, parents before children. Tables
// caught in a dependency cycle are appended at the end; see CyclicTables.
func (g *Graph) Order() []string {
	return g.order
}

// CyclicTables reports the tables whose parent edges form a cycle and whose
// relative order is therefore unspecified. Empty for acyclic schemas.
func (g *Graph) CyclicTables() []string {
	return g.cyclic
}

// topoOrder is Kahn's algorithm over the registered tables. Only edges whose
// parent is itself registered count toward the in-degree, so references to
// tables outside the replicated set do not block ordering.
func topoOrder(codecs map[string]Codec) (order, cyclic []string) {
	indeg := make(map[string]int, len(codecs))
	children := make(map[string][]string, len(codecs))
	for name, c := range codecs {
		if _, ok := indeg[name]; !ok {
			indeg[name] = 0
		}
		for _, p := range c.Parents() {
			if _, ok := codecs[p]; !ok {
				continue
			}
			indeg[name]++
			children[p] = append(children[p], name)
		}
	}

	var queue []string
	for name, d := range indeg {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order = make([]string, 0, len(codecs))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		next := append([]string(nil), children[u]...)
		sort.Strings(next)
		for _, v := range next {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if len(order) < len(codecs) {
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			seen[name] = true
		}
		for name := range codecs {
			if !seen[name] {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		order = append(order, cyclic...)
	}
	return order, cyclic
}
