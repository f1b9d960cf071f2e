package rxnorm

import (
	"context"

	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// DrugTermTypes are the term types that carry NDCs
var DrugTermTypes = map[string]bool{
	"SCD":  true,
	"SBD":  true,
	"GPCK": true,
	"BPCK": true,
}

// DefaultMaxDepth covers the longest legitimate chain, BPCK > SBD > SCD > SCDC > IN
const DefaultMaxDepth = 4

// Options tunes the resolution engine
type Options struct {
	MaxDepth           int
	ExcludedComponents []string
	Rules              []Rule // Defaults to IngredientRules
}

// Summary counts what a resolution run did
type Summary struct {
	NDCAttributes          int `json:"ndc_attributes"`
	Emitted                int `json:"emitted"`
	Skipped                int `json:"skipped"`
	OutOfScope             int `json:"out_of_scope"`
	Conflicts              int `json:"conflicts"`
	EmptyIngredientLists   int `json:"empty_ingredient_lists"`
	IngredientsWithUNII    int `json:"ingredients_with_unii"`
	IngredientsWithoutUNII int `json:"ingredients_without_unii"`
	TruncatedBranches      int `json:"truncated_branches"`
}

// Result is the resolved mapping plus what was recorded on the way
type Result struct {
	Records  map[string]entities.Record
	Summary  Summary
	Warnings []ResolutionWarning
}

// Engine resolves every RXNORM NDC to its drug concept and ingredients
type Engine struct {
	store    *Store
	graph    *Graph
	resolver *Resolver
	walk     WalkOptions
}

// NewEngine builds an engine over an already indexed release
func NewEngine(store *Store, graph *Graph, resolver *Resolver, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Rules == nil {
		opts.Rules = IngredientRules
	}

	exclude := make(map[string]bool, len(opts.ExcludedComponents))
	for _, id := range opts.ExcludedComponents {
		exclude[id] = true
	}

	return &Engine{
		store:    store,
		graph:    graph,
		resolver: resolver,
		walk: WalkOptions{
			Rules:    opts.Rules,
			MaxDepth: opts.MaxDepth,
			Exclude:  exclude,
		},
	}
}

// ResolveAll builds the NDC mapping. The first NDC attribute, in file order,
// whose concept resolves owns the NDC; later candidates are counted as conflicts.
func (e *Engine) ResolveAll(ctx context.Context) (*Result, error) {
	result := &Result{Records: make(map[string]entities.Record)}
	owner := make(map[string]string)

	for i, attr := range e.resolver.NDCs() {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		result.Summary.NDCAttributes++

		if current, owned := owner[attr.Ndc]; owned {
			if current != attr.Rxcui {
				result.Summary.Conflicts++
			}
			continue
		}

		concept, ok := e.store.Concept(attr.Rxcui)
		if !ok || concept.Name == "" || concept.Tty == "" {
			result.warn(attr, "missing name or term type")
			result.Summary.Skipped++
			continue
		}
		if !DrugTermTypes[concept.Tty] {
			result.Summary.OutOfScope++
			continue
		}

		record, truncated := e.resolve(attr.Ndc, concept)
		result.Summary.TruncatedBranches += truncated

		if len(record.Ingredients) == 0 {
			result.warn(attr, "no ingredients reachable")
			result.Summary.EmptyIngredientLists++
		}
		for _, ing := range record.Ingredients {
			if ing.Unii != nil {
				result.Summary.IngredientsWithUNII++
			} else {
				result.Summary.IngredientsWithoutUNII++
			}
		}

		owner[attr.Ndc] = attr.Rxcui
		result.Records[attr.Ndc] = record
		result.Summary.Emitted++
	}

	logging.Info("NDC resolution completed",
		"ndc_attributes", result.Summary.NDCAttributes,
		"emitted", result.Summary.Emitted,
		"skipped", result.Summary.Skipped,
		"conflicts", result.Summary.Conflicts,
	)
	return result, nil
}

func (r *Result) warn(attr NDCAttribute, reason string) {
	w := ResolutionWarning{Ndc: attr.Ndc, Rxcui: attr.Rxcui, Reason: reason}
	r.Warnings = append(r.Warnings, w)
	logging.Debug("NDC not fully resolved", "ndc", w.Ndc, "rxcui", w.Rxcui, "reason", w.Reason)
}

// resolve walks from the drug concept to its ingredients. Ingredients found by
// the walk come first in traversal order, then the ones only named by role attributes.
// An ingredient reached more than once, as in a pack of two strengths, is listed
// once with its role flags merged.
func (e *Engine) resolve(ndc string, drug entities.Concept) (entities.Record, int) {
	record := entities.Record{
		Ndc:         ndc,
		Rxcui:       drug.Rxcui,
		Str:         drug.Name,
		Tty:         drug.Tty,
		Ingredients: []entities.Ingredient{},
	}

	// Ingredient RxCUI -> position in record.Ingredients
	seen := make(map[string]int)
	add := func(rxcui string, flags RoleFlags) {
		if i, ok := seen[rxcui]; ok {
			ing := &record.Ingredients[i]
			ing.ActiveIngredient = ing.ActiveIngredient || flags.ActiveIngredient
			ing.ActiveMoiety = ing.ActiveMoiety || flags.ActiveMoiety
			ing.BasisOfStrength = ing.BasisOfStrength || flags.BasisOfStrength
			return
		}
		seen[rxcui] = len(record.Ingredients)
		record.Ingredients = append(record.Ingredients, e.ingredient(rxcui, flags))
	}

	var clinicalDrugs []string
	isClinical := make(map[string]bool)
	if drug.Tty == "SCD" {
		clinicalDrugs = append(clinicalDrugs, drug.Rxcui)
		isClinical[drug.Rxcui] = true
	}

	stats := e.graph.Walk(drug.Rxcui, e.store.Tty, e.walk, func(step Step) {
		switch step.Tty {
		case "SCD":
			if !isClinical[step.Node] {
				isClinical[step.Node] = true
				clinicalDrugs = append(clinicalDrugs, step.Node)
			}
		case "IN", "PIN":
			component := step.Path[len(step.Path)-2]
			owner := e.owningClinicalDrug(step.Path)
			if owner == "" {
				owner = component
			}
			add(step.Node, e.resolver.RoleFlags(owner, component, step.Node))
		}
	})

	for _, scd := range clinicalDrugs {
		for _, target := range e.resolver.AttributeTargets(scd) {
			if _, ok := seen[target.Rxcui]; ok {
				continue
			}
			tty := e.store.Tty(target.Rxcui)
			if tty != "IN" && tty != "PIN" {
				continue
			}
			add(target.Rxcui, target.Flags)
		}
	}

	return record, stats.Truncated
}

// owningClinicalDrug returns the nearest SCD above the last hop of path,
// or the empty string for an ingredient hanging off a branded drug
func (e *Engine) owningClinicalDrug(path []string) string {
	for i := len(path) - 2; i >= 0; i-- {
		if e.store.Tty(path[i]) == "SCD" {
			return path[i]
		}
	}
	return ""
}

func (e *Engine) ingredient(rxcui string, flags RoleFlags) entities.Ingredient {
	ing := entities.Ingredient{
		Rxcui:            rxcui,
		ActiveIngredient: flags.ActiveIngredient,
		ActiveMoiety:     flags.ActiveMoiety,
		BasisOfStrength:  flags.BasisOfStrength,
	}
	if concept, ok := e.store.Concept(rxcui); ok {
		ing.Str = concept.Name
		ing.Tty = concept.Tty
	}
	if code, ok := e.resolver.RegistryCode(rxcui); ok {
		ing.Unii = &code
	}
	return ing
}
