package rxnorm

import (
	"reflect"
	"testing"

	"github.com/giygas/ndc-unii/rxnorm/entities"
)

func TestRegistryCodePrecedence(t *testing.T) {
	tests := []struct {
		name  string
		atoms []entities.Atom
		attrs []entities.Attribute
		want  string
		found bool
	}{
		{
			name: "rxnorm provenance wins",
			atoms: []entities.Atom{
				{Rxcui: "1", Sab: SabMTHSPL, Tty: "SU", Code: "000AAAAAAA"},
			},
			attrs: []entities.Attribute{
				{Rxcui: "1", Atn: AtnUNII, Sab: SabRxNorm, Atv: "ABC123XYZ0"},
			},
			want:  "ABC123XYZ0",
			found: true,
		},
		{
			name: "smallest code breaks ties",
			attrs: []entities.Attribute{
				{Rxcui: "1", Atn: AtnUNII, Sab: SabMTHSPL, Atv: "ZZZ"},
				{Rxcui: "1", Atn: AtnUNII, Sab: "GS", Atv: "BBB"},
				{Rxcui: "1", Atn: AtnUNII, Sab: SabMTHSPL, Atv: "CCC"},
			},
			want:  "BBB",
			found: true,
		},
		{
			name: "smallest rxnorm code",
			attrs: []entities.Attribute{
				{Rxcui: "1", Atn: AtnUNII, Sab: SabRxNorm, Atv: "Y"},
				{Rxcui: "1", Atn: AtnUNII, Sab: "GS", Atv: "A"},
				{Rxcui: "1", Atn: AtnUNII, Sab: SabRxNorm, Atv: "X"},
			},
			want:  "X",
			found: true,
		},
		{
			name: "substance atom only",
			atoms: []entities.Atom{
				{Rxcui: "1", Sab: SabMTHSPL, Tty: "SU", Code: "9100L32L2N"},
				{Rxcui: "1", Sab: SabMTHSPL, Tty: "PT", Code: "IGNORED"},
			},
			want:  "9100L32L2N",
			found: true,
		},
		{
			name:  "no code",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.atoms, tt.attrs)
			got, found := r.RegistryCode("1")
			if found != tt.found || got != tt.want {
				t.Errorf("RegistryCode = (%q, %v), want (%q, %v)", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestRegistryCodeOrderIndependent(t *testing.T) {
	a := entities.Attribute{Rxcui: "1", Atn: AtnUNII, Sab: "GS", Atv: "B"}
	b := entities.Attribute{Rxcui: "1", Atn: AtnUNII, Sab: "GS", Atv: "A"}

	first, _ := NewResolver(nil, []entities.Attribute{a, b}).RegistryCode("1")
	second, _ := NewResolver(nil, []entities.Attribute{b, a}).RegistryCode("1")
	if first != second || first != "A" {
		t.Errorf("Expected A regardless of row order, got %q and %q", first, second)
	}
}

func TestRoleFlags(t *testing.T) {
	r := NewResolver(nil, []entities.Attribute{
		{Rxcui: "scd", Atn: AtnActiveIngredient, Sab: SabRxNorm, Atv: "{10} 100"},
		{Rxcui: "scd", Atn: AtnActiveMoiety, Sab: SabRxNorm, Atv: "{10} 200"},
		{Rxcui: "scd", Atn: AtnBasisOfStrength, Sab: SabRxNorm, Atv: "{10} AM"},
		{Rxcui: "scd", Atn: AtnActiveIngredient, Sab: SabRxNorm, Atv: "{20} 300"},
		{Rxcui: "scd", Atn: AtnBasisOfStrength, Sab: SabRxNorm, Atv: "{20} 400"},
		{Rxcui: "scd", Atn: AtnActiveMoiety, Sab: "MTHSPL", Atv: "{20} 300"},
		{Rxcui: "scd", Atn: AtnActiveIngredient, Sab: SabRxNorm, Atv: "not a role value"},
	})

	tests := []struct {
		component, ingredient string
		want                  RoleFlags
	}{
		{"10", "100", RoleFlags{ActiveIngredient: true}},
		{"10", "200", RoleFlags{ActiveMoiety: true, BasisOfStrength: true}},
		{"20", "300", RoleFlags{ActiveIngredient: true}},
		{"20", "400", RoleFlags{BasisOfStrength: true}},
		{"20", "100", RoleFlags{}},
		{"30", "100", RoleFlags{}},
	}

	for _, tt := range tests {
		if got := r.RoleFlags("scd", tt.component, tt.ingredient); got != tt.want {
			t.Errorf("RoleFlags(scd, %s, %s) = %+v, want %+v", tt.component, tt.ingredient, got, tt.want)
		}
	}

	if got := r.RoleFlags("other", "10", "100"); got != (RoleFlags{}) {
		t.Errorf("Expected no flags for another drug, got %+v", got)
	}

	// An ingredient linked straight to the drug takes the flags of every component
	merged := []struct {
		ingredient string
		want       RoleFlags
	}{
		{"100", RoleFlags{ActiveIngredient: true}},
		{"200", RoleFlags{ActiveMoiety: true, BasisOfStrength: true}},
		{"300", RoleFlags{ActiveIngredient: true}},
		{"400", RoleFlags{BasisOfStrength: true}},
		{"500", RoleFlags{}},
	}
	for _, tt := range merged {
		if got := r.RoleFlags("scd", "scd", tt.ingredient); got != tt.want {
			t.Errorf("RoleFlags(scd, scd, %s) = %+v, want %+v", tt.ingredient, got, tt.want)
		}
	}
}

func TestAttributeTargets(t *testing.T) {
	r := NewResolver(nil, []entities.Attribute{
		{Rxcui: "scd", Atn: AtnActiveIngredient, Sab: SabRxNorm, Atv: "{10} 300"},
		{Rxcui: "scd", Atn: AtnBasisOfStrength, Sab: SabRxNorm, Atv: "{10} AI"},
		{Rxcui: "scd", Atn: AtnActiveMoiety, Sab: SabRxNorm, Atv: "{20} 100"},
	})

	want := []AttributeTarget{
		{Rxcui: "100", Flags: RoleFlags{ActiveMoiety: true}},
		{Rxcui: "300", Flags: RoleFlags{ActiveIngredient: true, BasisOfStrength: true}},
	}
	if got := r.AttributeTargets("scd"); !reflect.DeepEqual(got, want) {
		t.Errorf("AttributeTargets = %+v, want %+v", got, want)
	}
	if got := r.AttributeTargets("none"); len(got) != 0 {
		t.Errorf("Expected no targets, got %+v", got)
	}
}

func TestNDCsFiltered(t *testing.T) {
	r := NewResolver(nil, []entities.Attribute{
		{Rxcui: "1", Atn: AtnNDC, Sab: SabRxNorm, Atv: "A", Suppress: "N"},
		{Rxcui: "2", Atn: AtnNDC, Sab: SabRxNorm, Atv: "B", Suppress: "O"},
		{Rxcui: "3", Atn: AtnNDC, Sab: SabMTHSPL, Atv: "C", Suppress: "N"},
		{Rxcui: "4", Atn: AtnNDC, Sab: SabRxNorm, Atv: "D", Suppress: "N"},
	})

	want := []NDCAttribute{{Ndc: "A", Rxcui: "1"}, {Ndc: "D", Rxcui: "4"}}
	if got := r.NDCs(); !reflect.DeepEqual(got, want) {
		t.Errorf("NDCs = %+v, want %+v", got, want)
	}
}
