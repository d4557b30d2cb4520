package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/koba/db-cascade/internal/schema"
)

// ErrCycle is returned when the order graph is not acyclic
var ErrCycle = errors.New("order graph contains a cycle")

// CycleError names the tables of one cycle left in the order graph
type CycleError struct {
	Tables []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(e.Tables, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

type pair struct {
	from string
	to   string
}

// DependencyGraph is a directed graph over table names. Each relation adds an
// edge from the referencing table to the referenced table.
type DependencyGraph struct {
	nodes     map[string]struct{}
	relations []schema.ForeignKey
	byPair    map[pair][]schema.ForeignKey
	preds     map[string]map[string]struct{}
}

// Build creates the graph from relations. Parallel relations between the
// same pair of tables are all kept.
func Build(relations []schema.ForeignKey) *DependencyGraph {
	g := &DependencyGraph{
		nodes:     make(map[string]struct{}),
		relations: append([]schema.ForeignKey(nil), relations...),
		byPair:    make(map[pair][]schema.ForeignKey),
		preds:     make(map[string]map[string]struct{}),
	}

	for _, r := range relations {
		g.nodes[r.Table] = struct{}{}
		g.nodes[r.ReferencedTable] = struct{}{}

		p := pair{from: r.Table, to: r.ReferencedTable}
		g.byPair[p] = append(g.byPair[p], r)

		if g.preds[r.ReferencedTable] == nil {
			g.preds[r.ReferencedTable] = make(map[string]struct{})
		}
		g.preds[r.ReferencedTable][r.Table] = struct{}{}
	}

	return g
}

// Tables returns every table in the graph, sorted by name
func (g *DependencyGraph) Tables() []string {
	tables := make([]string, 0, len(g.nodes))
	for t := range g.nodes {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Predecessors returns the tables holding at least one relation to table,
// sorted by name.
func (g *DependencyGraph) Predecessors(table string) []string {
	preds := make([]string, 0, len(g.preds[table]))
	for t := range g.preds[table] {
		preds = append(preds, t)
	}
	sort.Strings(preds)
	return preds
}

// Relations returns the relations from one table to another in declaration order
func (g *DependencyGraph) Relations(from, to string) []schema.ForeignKey {
	return g.byPair[pair{from: from, to: to}]
}

// TopologicalOrder ranks every table so that for each relation not named in
// excluding, the referencing table ranks lower than the referenced one.
// Independent tables are ordered by name.
func (g *DependencyGraph) TopologicalOrder(excluding map[string]struct{}) (map[string]int, error) {
	succ := make(map[string]map[string]struct{})
	indegree := make(map[string]int, len(g.nodes))
	for t := range g.nodes {
		indegree[t] = 0
	}

	for _, r := range g.relations {
		if _, skip := excluding[r.Name]; skip {
			continue
		}
		if succ[r.Table] == nil {
			succ[r.Table] = make(map[string]struct{})
		}
		if _, dup := succ[r.Table][r.ReferencedTable]; dup {
			continue
		}
		succ[r.Table][r.ReferencedTable] = struct{}{}
		indegree[r.ReferencedTable]++
	}

	var ready []string
	for t, d := range indegree {
		if d == 0 {
			ready = append(ready, t)
		}
	}
	sort.Strings(ready)

	rank := make(map[string]int, len(g.nodes))
	for len(ready) > 0 {
		t := ready[0]
		ready = ready[1:]
		rank[t] = len(rank)

		next := make([]string, 0, len(succ[t]))
		for s := range succ[t] {
			indegree[s]--
			if indegree[s] == 0 {
				next = append(next, s)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sort.Strings(ready)
		}
	}

	if len(rank) != len(g.nodes) {
		return nil, &CycleError{Tables: findCycle(succ, rank)}
	}

	return rank, nil
}

// findCycle walks the unranked part of the graph until a table repeats
func findCycle(succ map[string]map[string]struct{}, ranked map[string]int) []string {
	var start []string
	for t := range succ {
		if _, ok := ranked[t]; !ok {
			start = append(start, t)
		}
	}
	sort.Strings(start)

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(string) []string
	visit = func(t string) []string {
		state[t] = onStack
		stack = append(stack, t)

		next := make([]string, 0, len(succ[t]))
		for s := range succ[t] {
			if _, ok := ranked[s]; !ok {
				next = append(next, s)
			}
		}
		sort.Strings(next)

		for _, s := range next {
			switch state[s] {
			case onStack:
				for i, v := range stack {
					if v == s {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, s)
					}
				}
			case unvisited:
				if c := visit(s); c != nil {
					return c
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[t] = done
		return nil
	}

	for _, t := range start {
		if state[t] == unvisited {
			if c := visit(t); c != nil {
				return c
			}
		}
	}
	return nil
}
