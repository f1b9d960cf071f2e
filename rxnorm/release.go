package rxnorm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
	"golang.org/x/sync/errgroup"
)

// RRF file names inside a release
const (
	ConceptsFile      = "RXNCONSO.RRF"
	RelationshipsFile = "RXNREL.RRF"
	AttributesFile    = "RXNSAT.RRF"
)

// Paths locates the three source tables
type Paths struct {
	Concepts      string
	Relationships string
	Attributes    string
}

// PathsIn returns the table paths under dir. A table missing from dir but
// present in the working directory is taken from there.
func PathsIn(dir string) Paths {
	pick := func(name string) string {
		preferred := filepath.Join(dir, name)
		if fileExists(preferred) {
			return preferred
		}
		if fileExists(name) {
			return name
		}
		return preferred
	}
	return Paths{
		Concepts:      pick(ConceptsFile),
		Relationships: pick(RelationshipsFile),
		Attributes:    pick(AttributesFile),
	}
}

// Missing returns the paths that do not exist
func (p Paths) Missing() []string {
	var missing []string
	for _, path := range []string{p.Concepts, p.Relationships, p.Attributes} {
		if !fileExists(path) {
			missing = append(missing, path)
		}
	}
	return missing
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadStats describes a loaded release
type LoadStats struct {
	Atoms         int
	Relationships int
	Attributes    int
	Edges         int
	Duration      time.Duration
}

// Release is the per run context: the indexed tables, the relationship graph
// and the attribute resolver. Nothing is shared between releases.
type Release struct {
	Store    *Store
	Graph    *Graph
	Resolver *Resolver
	Stats    LoadStats
}

// LoadRelease parses the three tables concurrently and indexes them.
// Any ParseError aborts the whole load.
func LoadRelease(ctx context.Context, paths Paths) (*Release, error) {
	start := time.Now()

	var (
		concepts      *Table[entities.Atom]
		relationships *Table[entities.Relationship]
		attributes    *Table[entities.Attribute]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := LoadConcepts(gctx, paths.Concepts)
		if err != nil {
			return fmt.Errorf("failed to load concepts: %w", err)
		}
		concepts = t
		return nil
	})
	g.Go(func() error {
		t, err := LoadRelationships(gctx, paths.Relationships)
		if err != nil {
			return fmt.Errorf("failed to load relationships: %w", err)
		}
		relationships = t
		return nil
	})
	g.Go(func() error {
		t, err := LoadAttributes(gctx, paths.Attributes)
		if err != nil {
			return fmt.Errorf("failed to load attributes: %w", err)
		}
		attributes = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release := NewRelease(concepts.Rows, relationships.Rows, attributes.Rows)
	release.Stats.Duration = time.Since(start)

	logging.Info("RxNorm release loaded",
		"atoms", release.Stats.Atoms,
		"relationships", release.Stats.Relationships,
		"attributes", release.Stats.Attributes,
		"edges", release.Stats.Edges,
		"duration", release.Stats.Duration.String(),
	)
	return release, nil
}

// NewRelease indexes already parsed rows
func NewRelease(atoms []entities.Atom, relationships []entities.Relationship, attributes []entities.Attribute) *Release {
	store := NewStore(atoms, relationships, attributes)
	graph := NewGraph(relationships, SabRxNorm)
	return &Release{
		Store:    store,
		Graph:    graph,
		Resolver: NewResolver(atoms, attributes),
		Stats: LoadStats{
			Atoms:         len(atoms),
			Relationships: len(relationships),
			Attributes:    len(attributes),
			Edges:         graph.Edges(),
		},
	}
}

// Engine returns a resolution engine over the release
func (r *Release) Engine(opts Options) *Engine {
	return NewEngine(r.Store, r.Graph, r.Resolver, opts)
}
