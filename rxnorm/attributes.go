package rxnorm

import (
	"regexp"
	"sort"
	"strings"

	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// roleValuePattern matches role attribute values such as "{316964} 7052" or "{316964} AI"
var roleValuePattern = regexp.MustCompile(`\{(\d+)\}\s*(\d+|AI|AM)`)

// RoleFlags are the three independent clinical role flags of an ingredient within a drug
type RoleFlags struct {
	ActiveIngredient bool
	ActiveMoiety     bool
	BasisOfStrength  bool
}

// RegistryCode is one candidate substance registry code with its provenance
type RegistryCode struct {
	Code string
	Sab  string
}

// codeRule orders two candidates: negative prefers a, positive prefers b, zero defers to the next rule
type codeRule func(a, b RegistryCode) int

// preferSource ranks codes provided by sab ahead of all others
func preferSource(sab string) codeRule {
	return func(a, b RegistryCode) int {
		switch {
		case a.Sab == sab && b.Sab != sab:
			return -1
		case b.Sab == sab && a.Sab != sab:
			return 1
		}
		return 0
	}
}

func lexicographic(a, b RegistryCode) int {
	return strings.Compare(a.Code, b.Code)
}

// RegistryCodePrecedence resolves conflicting registry codes: RXNORM provided
// codes first, then the lexicographically smallest code
var RegistryCodePrecedence = []codeRule{
	preferSource(SabRxNorm),
	lexicographic,
}

// NDCAttribute is an NDC attached to a concept, in RXNSAT row order
type NDCAttribute struct {
	Ndc   string
	Rxcui string
}

// componentRoles holds the role targets a drug declares for one of its components
type componentRoles struct {
	ai   map[string]bool
	am   map[string]bool
	boss map[string]bool // Ingredient RxCUI or the AI/AM indirection
}

func newComponentRoles() *componentRoles {
	return &componentRoles{ai: map[string]bool{}, am: map[string]bool{}, boss: map[string]bool{}}
}

// AttributeTarget is an ingredient named by a drug's role attributes
type AttributeTarget struct {
	Rxcui string
	Flags RoleFlags
}

// Resolver answers registry code and role flag questions from pre-indexed attributes
type Resolver struct {
	codes      map[string][]RegistryCode
	roles      map[string]map[string]*componentRoles // drug -> component -> roles
	ndcs       []NDCAttribute
	precedence []codeRule
}

// NewResolver indexes registry codes from RXNSAT UNII_CODE rows and MTHSPL SU atoms,
// role attributes and unsuppressed RXNORM NDC rows
func NewResolver(atoms []entities.Atom, attributes []entities.Attribute) *Resolver {
	r := &Resolver{
		codes:      make(map[string][]RegistryCode),
		roles:      make(map[string]map[string]*componentRoles),
		precedence: RegistryCodePrecedence,
	}

	for _, atom := range atoms {
		if atom.Sab == SabMTHSPL && atom.Tty == "SU" && atom.Code != "" && atom.Rxcui != "" {
			r.addCode(atom.Rxcui, RegistryCode{Code: atom.Code, Sab: atom.Sab})
		}
	}

	for _, attr := range attributes {
		if attr.Rxcui == "" {
			continue
		}
		switch attr.Atn {
		case AtnUNII:
			if attr.Atv != "" {
				r.addCode(attr.Rxcui, RegistryCode{Code: attr.Atv, Sab: attr.Sab})
			}
		case AtnNDC:
			if attr.Sab == SabRxNorm && attr.Suppress == "N" && attr.Atv != "" {
				r.ndcs = append(r.ndcs, NDCAttribute{Ndc: attr.Atv, Rxcui: attr.Rxcui})
			}
		case AtnActiveIngredient, AtnActiveMoiety, AtnBasisOfStrength:
			if attr.Sab == SabRxNorm {
				r.addRole(attr)
			}
		}
	}

	return r
}

func (r *Resolver) addCode(rxcui string, code RegistryCode) {
	for _, existing := range r.codes[rxcui] {
		if existing == code {
			return
		}
	}
	r.codes[rxcui] = append(r.codes[rxcui], code)
}

func (r *Resolver) addRole(attr entities.Attribute) {
	m := roleValuePattern.FindStringSubmatch(attr.Atv)
	if m == nil {
		return
	}
	component, target := m[1], m[2]

	byComponent, ok := r.roles[attr.Rxcui]
	if !ok {
		byComponent = make(map[string]*componentRoles)
		r.roles[attr.Rxcui] = byComponent
	}
	roles, ok := byComponent[component]
	if !ok {
		roles = newComponentRoles()
		byComponent[component] = roles
	}

	switch attr.Atn {
	case AtnActiveIngredient:
		roles.ai[target] = true
	case AtnActiveMoiety:
		roles.am[target] = true
	case AtnBasisOfStrength:
		roles.boss[target] = true
	}
}

// RegistryCodes returns every candidate code of rxcui, unordered
func (r *Resolver) RegistryCodes(rxcui string) []RegistryCode {
	return r.codes[rxcui]
}

// RegistryCode returns the code of rxcui chosen by RegistryCodePrecedence
func (r *Resolver) RegistryCode(rxcui string) (string, bool) {
	candidates := r.codes[rxcui]
	if len(candidates) == 0 {
		return "", false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if r.compare(c, best) < 0 {
			best = c
		}
	}
	return best.Code, true
}

func (r *Resolver) compare(a, b RegistryCode) int {
	for _, rule := range r.precedence {
		if c := rule(a, b); c != 0 {
			return c
		}
	}
	return 0
}

// RoleFlags reports which role attributes of drug name ingredient for the given component.
// A basis of strength given as AI or AM means the component's AI or AM target.
// When the ingredient hangs off the drug itself, component is the drug and the
// flags of all its components are merged.
func (r *Resolver) RoleFlags(drug, component, ingredient string) RoleFlags {
	if component == drug {
		var merged RoleFlags
		for _, roles := range r.roles[drug] {
			merged = merged.or(roles.flags(ingredient))
		}
		return merged
	}

	roles, ok := r.roles[drug][component]
	if !ok {
		return RoleFlags{}
	}
	return roles.flags(ingredient)
}

func (f RoleFlags) or(other RoleFlags) RoleFlags {
	return RoleFlags{
		ActiveIngredient: f.ActiveIngredient || other.ActiveIngredient,
		ActiveMoiety:     f.ActiveMoiety || other.ActiveMoiety,
		BasisOfStrength:  f.BasisOfStrength || other.BasisOfStrength,
	}
}

func (c *componentRoles) flags(ingredient string) RoleFlags {
	return RoleFlags{
		ActiveIngredient: c.ai[ingredient],
		ActiveMoiety:     c.am[ingredient],
		BasisOfStrength: c.boss[ingredient] ||
			(c.boss["AI"] && c.ai[ingredient]) ||
			(c.boss["AM"] && c.am[ingredient]),
	}
}

// AttributeTargets returns every ingredient named by drug's role attributes,
// sorted by RxCUI, with flags merged across components
func (r *Resolver) AttributeTargets(drug string) []AttributeTarget {
	merged := make(map[string]RoleFlags)

	for _, roles := range r.roles[drug] {
		candidates := make(map[string]bool)
		for _, set := range []map[string]bool{roles.ai, roles.am, roles.boss} {
			for target := range set {
				if target != "AI" && target != "AM" {
					candidates[target] = true
				}
			}
		}
		for target := range candidates {
			merged[target] = merged[target].or(roles.flags(target))
		}
	}

	targets := make([]AttributeTarget, 0, len(merged))
	for rxcui, flags := range merged {
		targets = append(targets, AttributeTarget{Rxcui: rxcui, Flags: flags})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Rxcui < targets[j].Rxcui })
	return targets
}

// NDCs returns the unsuppressed RXNORM NDC attributes in file order
func (r *Resolver) NDCs() []NDCAttribute {
	return r.ndcs
}
