package prereq

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
)

// Graph is the directed prerequisite graph of one major. An edge A->B means
// A is a prerequisite of B. A Graph is immutable once Build returns it.
type Graph struct {
	Major string

	// codes[i] is the course code of node i; codes is sorted.
	codes  []string
	ids    map[string]int64
	byBase map[string][]string
	g      *simple.DirectedGraph
	edges  int
}

// Build groups records into majors and returns one graph per major key. Each
// parsed course code becomes a node of its code-prefix major and, when the record
// has a department name, of that department's major too. Prerequisite tokens that
// do not resolve to a course of the same major are dropped, as are self-loops.
func Build(records []models.NormalizedCourseRecord) map[string]*Graph {
	// major -> code -> prerequisite tokens (merged across sections)
	majors := make(map[string]map[string][]string)
	add := func(major, code string, prereqs []string) {
		if major == "" {
			return
		}
		m, ok := majors[major]
		if !ok {
			m = make(map[string][]string)
			majors[major] = m
		}
		m[code] = append(m[code], prereqs...)
	}

	for i := range records {
		r := &records[i]
		if !r.CodeParsed() {
			continue
		}
		prereqs := ExtractCodes(r.Prerequisites)
		add(MajorKey(r.Department), r.Code, prereqs)
		if name := MajorKey(r.DepartmentName); name != MajorKey(r.Department) {
			add(name, r.Code, prereqs)
		}
	}

	graphs := make(map[string]*Graph, len(majors))
	for major, courses := range majors {
		graphs[major] = buildGraph(major, courses)
	}
	return graphs
}

func buildGraph(major string, courses map[string][]string) *Graph {
	g := &Graph{
		Major:  major,
		codes:  make([]string, 0, len(courses)),
		ids:    make(map[string]int64, len(courses)),
		byBase: make(map[string][]string),
		g:      simple.NewDirectedGraph(),
	}
	for code := range courses {
		g.codes = append(g.codes, code)
	}
	sort.Strings(g.codes)
	for i, code := range g.codes {
		g.ids[code] = int64(i)
		g.g.AddNode(simple.Node(i))
		base := normalize.BaseCode(code)
		g.byBase[base] = append(g.byBase[base], code)
	}

	for _, target := range g.codes {
		to := g.ids[target]
		for _, token := range courses[target] {
			source, ok := g.resolve(token)
			if !ok || source == target {
				continue
			}
			from := g.ids[source]
			if g.g.HasEdgeFromTo(from, to) {
				continue
			}
			g.g.SetEdge(g.g.NewEdge(simple.Node(from), simple.Node(to)))
			g.edges++
		}
	}
	return g
}

// resolve maps a canonical code to a course of the graph: the exact code, else
// the smallest code sharing its base number ("COP3502" finds "COP3502C").
func (g *Graph) resolve(code string) (string, bool) {
	if _, ok := g.ids[code]; ok {
		return code, true
	}
	// codes are sorted, so the first candidate is the smallest code
	if candidates := g.byBase[normalize.BaseCode(code)]; len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}

func (g *Graph) codesOf(nodes graph.Nodes) []string {
	var out []string
	for _, n := range graph.NodesOf(nodes) {
		out = append(out, g.codes[n.ID()])
	}
	sort.Strings(out)
	return out
}

// Nodes returns the course codes of the graph in ascending order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.codes))
	copy(out, g.codes)
	return out
}

// HasNode reports whether code is a course of this major.
func (g *Graph) HasNode(code string) bool {
	_, ok := g.ids[code]
	return ok
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Prerequisites returns the direct prerequisites of code in ascending order.
func (g *Graph) Prerequisites(code string) []string {
	id, ok := g.ids[code]
	if !ok {
		return nil
	}
	return g.codesOf(g.g.To(id))
}

// Dependents returns the courses that directly require code, in ascending order.
func (g *Graph) Dependents(code string) []string {
	id, ok := g.ids[code]
	if !ok {
		return nil
	}
	return g.codesOf(g.g.From(id))
}

// Edges returns every edge sorted by source, then target.
func (g *Graph) Edges() []models.GraphEdge {
	edges := make([]models.GraphEdge, 0, g.edges)
	for _, source := range g.codes {
		for _, target := range g.Dependents(source) {
			edges = append(edges, models.GraphEdge{Source: source, Target: target})
		}
	}
	return edges
}

// Subgraph returns the one-hop induced subgraph around selected: the selected
// courses that exist in the graph, their direct prerequisites and dependents,
// and every edge with both endpoints in that set. Selected codes resolve like
// prerequisite tokens, so "COP3502" selects "COP3502C"; unknown ones are ignored.
// An empty selection returns the whole graph.
func (g *Graph) Subgraph(selected []string) ([]models.GraphNode, []models.GraphEdge) {
	if len(selected) == 0 {
		nodes := make([]models.GraphNode, 0, len(g.codes))
		for _, code := range g.codes {
			nodes = append(nodes, models.GraphNode{ID: code})
		}
		return nodes, g.Edges()
	}

	chosen := make(map[string]bool)
	for _, raw := range selected {
		parsed := normalize.ParseCode(raw)
		if !parsed.Parsed() {
			continue
		}
		if code, ok := g.resolve(parsed.Code); ok {
			chosen[code] = true
		}
	}
	members := make(map[string]struct{}, len(chosen))
	for code := range chosen {
		members[code] = struct{}{}
		for _, n := range g.Prerequisites(code) {
			members[n] = struct{}{}
		}
		for _, n := range g.Dependents(code) {
			members[n] = struct{}{}
		}
	}

	ids := make([]string, 0, len(members))
	for code := range members {
		ids = append(ids, code)
	}
	sort.Strings(ids)

	nodes := make([]models.GraphNode, 0, len(ids))
	edges := make([]models.GraphEdge, 0)
	for _, source := range ids {
		nodes = append(nodes, models.GraphNode{ID: source, Selected: chosen[source]})
		for _, target := range g.Dependents(source) {
			if _, ok := members[target]; ok {
				edges = append(edges, models.GraphEdge{Source: source, Target: target})
			}
		}
	}
	return nodes, edges
}

// Cycles returns the number of strongly connected components with more than one
// course. Cycles are legal in catalog data; the count is only reported.
func (g *Graph) Cycles() int {
	cycles := 0
	for _, scc := range topo.TarjanSCC(g.g) {
		if len(scc) > 1 {
			cycles++
		}
	}
	return cycles
}
