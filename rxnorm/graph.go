package rxnorm

import (
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Relationship labels followed from a drug to its ingredients. RXNREL lists
// most pairs under both a label and its inverse.
const (
	RelaTradenameOf          = "tradename_of"
	RelaHasTradename         = "has_tradename"
	RelaContains             = "contains"
	RelaContainedIn          = "contained_in"
	RelaConsistsOf           = "consists_of"
	RelaConstitutes          = "constitutes"
	RelaHasIngredient        = "has_ingredient"
	RelaIngredientOf         = "ingredient_of"
	RelaHasPreciseIngredient = "has_precise_ingredient"
	RelaPreciseIngredientOf  = "precise_ingredient_of"
)

type adjacencyKey struct {
	rxcui string
	label string
}

type edgeKey struct {
	a, b  string
	label string
}

// Graph is an adjacency view over RXNREL. Each edge is reachable from both of
// its endpoints under its label; traversal rules choose the direction by term type.
type Graph struct {
	adjacency map[adjacencyKey][]string
	edges     int
}

// NewGraph indexes the relationships of one source vocabulary.
// Duplicate edges, in either orientation, are kept once.
func NewGraph(relationships []entities.Relationship, sab string) *Graph {
	g := &Graph{adjacency: make(map[adjacencyKey][]string)}
	seen := make(map[edgeKey]struct{})

	for _, rel := range relationships {
		if rel.Sab != sab || rel.Rxcui1 == "" || rel.Rxcui2 == "" || rel.Rela == "" {
			continue
		}

		a, b := rel.Rxcui1, rel.Rxcui2
		if b < a {
			a, b = b, a
		}
		key := edgeKey{a: a, b: b, label: rel.Rela}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.edges++

		g.link(rel.Rxcui1, rel.Rxcui2, rel.Rela)
		if rel.Rxcui1 != rel.Rxcui2 {
			g.link(rel.Rxcui2, rel.Rxcui1, rel.Rela)
		}
	}

	return g
}

func (g *Graph) link(from, to, label string) {
	k := adjacencyKey{rxcui: from, label: label}
	g.adjacency[k] = append(g.adjacency[k], to)
}

// Neighbors returns the concepts linked to rxcui under label, in insertion order
func (g *Graph) Neighbors(rxcui, label string) []string {
	return g.adjacency[adjacencyKey{rxcui: rxcui, label: label}]
}

// Edges returns the number of distinct edges
func (g *Graph) Edges() int {
	return g.edges
}

// Rule allows one hop: from a concept of term type From, under Label, to a concept of term type To
type Rule struct {
	From  string
	Label string
	To    string
}

// IngredientRules walks from any NDC bearing drug down to its ingredients
var IngredientRules = []Rule{
	{From: "BPCK", Label: RelaContains, To: "SBD"},
	{From: "BPCK", Label: RelaContainedIn, To: "SBD"},
	{From: "BPCK", Label: RelaContains, To: "SCD"},
	{From: "BPCK", Label: RelaContainedIn, To: "SCD"},
	{From: "GPCK", Label: RelaContains, To: "SCD"},
	{From: "GPCK", Label: RelaContainedIn, To: "SCD"},
	{From: "SBD", Label: RelaTradenameOf, To: "SCD"},
	{From: "SBD", Label: RelaHasTradename, To: "SCD"},
	{From: "SCD", Label: RelaConsistsOf, To: "SCDC"},
	{From: "SCD", Label: RelaConstitutes, To: "SCDC"},
	{From: "SCD", Label: RelaHasIngredient, To: "IN"},
	{From: "SCD", Label: RelaIngredientOf, To: "IN"},
	{From: "SCD", Label: RelaHasPreciseIngredient, To: "PIN"},
	{From: "SCD", Label: RelaPreciseIngredientOf, To: "PIN"},
	{From: "SBD", Label: RelaHasIngredient, To: "IN"},
	{From: "SBD", Label: RelaIngredientOf, To: "IN"},
	{From: "SBD", Label: RelaHasPreciseIngredient, To: "PIN"},
	{From: "SBD", Label: RelaPreciseIngredientOf, To: "PIN"},
	{From: "SCDC", Label: RelaHasIngredient, To: "IN"},
	{From: "SCDC", Label: RelaIngredientOf, To: "IN"},
	{From: "SCDC", Label: RelaHasPreciseIngredient, To: "PIN"},
	{From: "SCDC", Label: RelaPreciseIngredientOf, To: "PIN"},
}

// WalkOptions bounds a traversal
type WalkOptions struct {
	Rules    []Rule
	MaxDepth int
	Exclude  map[string]bool // Concepts never entered
}

// Step is one hop of a walk. Path runs from the start concept to Node.
type Step struct {
	Node  string
	Tty   string
	Label string
	Depth int
	Path  []string
}

// WalkStats counts what a walk did
type WalkStats struct {
	Steps     int
	Truncated int // Branches cut at the depth cap
}

type frontier struct {
	node  string
	depth int
	path  []string
}

// Walk does a breadth-first traversal from start following only the given rules.
// Every distinct (parent, node) hop is visited once and every node is expanded
// once, at the shallowest depth it is reached, so cycles terminate. A node at
// MaxDepth with further hops is not expanded and counts as a truncated branch.
func (g *Graph) Walk(start string, ttyOf func(string) string, opts WalkOptions, visit func(Step)) WalkStats {
	var stats WalkStats
	if opts.Exclude[start] {
		return stats
	}

	byFrom := make(map[string][]Rule)
	for _, r := range opts.Rules {
		byFrom[r.From] = append(byFrom[r.From], r)
	}

	expanded := map[string]bool{}
	hops := map[[2]string]bool{}
	queue := []frontier{{node: start, path: []string{start}}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if expanded[current.node] {
			continue
		}
		expanded[current.node] = true

		for _, rule := range byFrom[ttyOf(current.node)] {
			for _, next := range g.Neighbors(current.node, rule.Label) {
				if opts.Exclude[next] || ttyOf(next) != rule.To {
					continue
				}
				if current.depth >= opts.MaxDepth {
					stats.Truncated++
					continue
				}

				hop := [2]string{current.node, next}
				if hops[hop] {
					continue
				}
				hops[hop] = true

				path := make([]string, len(current.path)+1)
				copy(path, current.path)
				path[len(current.path)] = next

				stats.Steps++
				visit(Step{Node: next, Tty: rule.To, Label: rule.Label, Depth: current.depth + 1, Path: path})
				if !expanded[next] {
					queue = append(queue, frontier{node: next, depth: current.depth + 1, path: path})
				}
			}
		}
	}

	return stats
}
