package cascade

import (
	"fmt"
	"sort"

	"github.com/koba/db-cascade/internal/graph"
	"github.com/koba/db-cascade/internal/schema"
)

// Catalog is the read-only schema context shared by every cascade step:
// primary keys, the dependency graph, topological ranks and the trouble set.
type Catalog struct {
	keys    schema.PrimaryKeyIndex
	graph   *graph.DependencyGraph
	trouble map[string]struct{}
	rank    map[string]int
}

// NewCatalog builds the catalog and ranks the order graph. It fails when the
// graph stays cyclic after removing the trouble relations.
func NewCatalog(keys schema.PrimaryKeyIndex, relations []schema.ForeignKey, trouble []string) (*Catalog, error) {
	c := &Catalog{
		keys:    keys,
		graph:   graph.Build(relations),
		trouble: make(map[string]struct{}, len(trouble)),
	}
	for _, name := range trouble {
		c.trouble[name] = struct{}{}
	}

	rank, err := c.graph.TopologicalOrder(c.trouble)
	if err != nil {
		return nil, fmt.Errorf("trouble set is incomplete: %w", err)
	}
	c.rank = rank

	return c, nil
}

// IsTrouble reports whether a relation is configured as cycle-closing
func (c *Catalog) IsTrouble(relation string) bool {
	_, ok := c.trouble[relation]
	return ok
}

// Keys returns the primary key index
func (c *Catalog) Keys() schema.PrimaryKeyIndex {
	return c.keys
}

// Graph returns the dependency graph
func (c *Catalog) Graph() *graph.DependencyGraph {
	return c.graph
}

// Rank returns the topological position of a table. Tables outside the
// graph rank after every table in it.
func (c *Catalog) Rank(table string) int {
	if r, ok := c.rank[table]; ok {
		return r
	}
	return len(c.rank)
}

// Dependents returns the relations pointing at table, grouped by referencing
// table in rank order and in declaration order within a table.
func (c *Catalog) Dependents(table string) []schema.ForeignKey {
	preds := c.graph.Predecessors(table)
	sort.SliceStable(preds, func(i, j int) bool {
		return c.Rank(preds[i]) < c.Rank(preds[j])
	})

	var deps []schema.ForeignKey
	for _, p := range preds {
		deps = append(deps, c.graph.Relations(p, table)...)
	}
	return deps
}
