package rxnorm

import (
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Source vocabularies the resolver cares about
const (
	SabRxNorm = "RXNORM"
	SabMTHSPL = "MTHSPL"
)

// Synonym term types never name a concept
var synonymTermTypes = map[string]bool{
	"SY":   true,
	"TMSY": true,
	"PSN":  true,
	"ET":   true,
}

type sourceKey struct {
	sab   string
	rxcui string
}

type namedConcept struct {
	concept entities.Concept
	score   int
}

// Store holds the parsed release tables with concepts indexed by source and RxCUI
type Store struct {
	concepts      map[sourceKey]*namedConcept
	bySource      map[string][]string
	atoms         []entities.Atom
	relationships []entities.Relationship
	attributes    []entities.Attribute
}

// nameScore ranks an atom for naming: preferred term status and preferred
// atom (0) beat preferred atom (1), then preferred term status (2), then anything (3)
func nameScore(a entities.Atom) int {
	switch {
	case a.TermStatus == "P" && a.IsPreferred == "Y":
		return 0
	case a.IsPreferred == "Y":
		return 1
	case a.TermStatus == "P":
		return 2
	default:
		return 3
	}
}

// NewStore indexes the three tables. A concept takes its name and term type
// from its best scoring atom; ties keep the first atom seen.
func NewStore(atoms []entities.Atom, relationships []entities.Relationship, attributes []entities.Attribute) *Store {
	s := &Store{
		concepts:      make(map[sourceKey]*namedConcept),
		bySource:      make(map[string][]string),
		atoms:         atoms,
		relationships: relationships,
		attributes:    attributes,
	}

	for _, atom := range atoms {
		if atom.Rxcui == "" || synonymTermTypes[atom.Tty] {
			continue
		}

		key := sourceKey{sab: atom.Sab, rxcui: atom.Rxcui}
		score := nameScore(atom)

		existing, ok := s.concepts[key]
		if !ok {
			s.concepts[key] = &namedConcept{
				concept: entities.Concept{Rxcui: atom.Rxcui, Name: atom.Str, Tty: atom.Tty, Sab: atom.Sab},
				score:   score,
			}
			s.bySource[atom.Sab] = append(s.bySource[atom.Sab], atom.Rxcui)
			continue
		}

		if score < existing.score {
			existing.concept.Name = atom.Str
			existing.concept.Tty = atom.Tty
			existing.score = score
		}
	}

	return s
}

// Concept returns the RXNORM concept for rxcui
func (s *Store) Concept(rxcui string) (entities.Concept, bool) {
	return s.ConceptFrom(SabRxNorm, rxcui)
}

// ConceptFrom returns the concept for rxcui as named by the given source
func (s *Store) ConceptFrom(sab, rxcui string) (entities.Concept, bool) {
	nc, ok := s.concepts[sourceKey{sab: sab, rxcui: rxcui}]
	if !ok {
		return entities.Concept{}, false
	}
	return nc.concept, true
}

// Tty returns the RXNORM term type of rxcui, or "" when unknown
func (s *Store) Tty(rxcui string) string {
	if nc, ok := s.concepts[sourceKey{sab: SabRxNorm, rxcui: rxcui}]; ok {
		return nc.concept.Tty
	}
	return ""
}

// ConceptsBySource returns every concept of a source vocabulary in first seen order
func (s *Store) ConceptsBySource(sab string) []entities.Concept {
	ids := s.bySource[sab]
	concepts := make([]entities.Concept, 0, len(ids))
	for _, id := range ids {
		concepts = append(concepts, s.concepts[sourceKey{sab: sab, rxcui: id}].concept)
	}
	return concepts
}

// Atoms returns the RXNCONSO rows
func (s *Store) Atoms() []entities.Atom { return s.atoms }

// Relationships returns the RXNREL rows
func (s *Store) Relationships() []entities.Relationship { return s.relationships }

// Attributes returns the kept RXNSAT rows
func (s *Store) Attributes() []entities.Attribute { return s.attributes }
