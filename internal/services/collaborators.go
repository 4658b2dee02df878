package services

import (
	"context"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/mastery"
	"github.com/mindgrove/mindgrove-backend/internal/types"
)

// CatalogSource supplies the concept catalog and relationship list a graph
// snapshot is built from. Implementations live under internal/platform.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (map[string]graph.ConceptInput, []graph.RelationshipInput, error)
}

// VisualAidLookup is the read-only collaborator that maps concepts to
// rendered assets. Only used to annotate review entries.
type VisualAidLookup interface {
	MappingsForConcept(ctx context.Context, conceptID string) ([]types.VisualAidMapping, error)
}

// graphCatalog adapts a graph snapshot onto the scheduler's catalog lookup.
type graphCatalog struct {
	g *graph.ConceptGraph
}

func (c graphCatalog) ConceptInfo(id string) (mastery.ConceptInfo, bool) {
	if c.g == nil {
		return mastery.ConceptInfo{}, false
	}
	n, ok := c.g.Node(id)
	if !ok {
		return mastery.ConceptInfo{}, false
	}
	return mastery.ConceptInfo{Name: n.Name, Subject: n.SubjectID}, true
}
