package catalogfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// catalogDoc is the on-disk catalog layout.
type catalogDoc struct {
	Concepts      map[string]graph.ConceptInput `yaml:"concepts"`
	Relationships []graph.RelationshipInput     `yaml:"relationships"`
}

// Source loads a concept catalog from a YAML file. It is the default
// catalog source for local runs and the inference CLI.
type Source struct {
	path string
	log  *logger.Logger
}

func New(path string, baseLog *logger.Logger) *Source {
	return &Source{path: path, log: baseLog.With("client", "CatalogFile")}
}

func (s *Source) LoadCatalog(ctx context.Context) (map[string]graph.ConceptInput, []graph.RelationshipInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("catalogfile: read %s: %w", s.path, err)
	}
	var doc catalogDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("catalogfile: parse %s: %w", s.path, err)
	}
	s.log.Debug("catalog loaded", "path", s.path, "concepts", len(doc.Concepts), "relationships", len(doc.Relationships))
	return doc.Concepts, doc.Relationships, nil
}
