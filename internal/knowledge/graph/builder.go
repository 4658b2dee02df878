package graph

import (
	"fmt"
	"sort"
)

// ConceptInput is the catalog-side attribute bag for one concept, as handed
// over by a catalog source.
type ConceptInput struct {
	Name               string   `yaml:"name" json:"name"`
	SubjectID          string   `yaml:"subject_id" json:"subject_id"`
	DifficultyLevel    string   `yaml:"difficulty_level" json:"difficulty_level"`
	Tags               []string `yaml:"tags" json:"tags"`
	Keywords           []string `yaml:"keywords" json:"keywords"`
	LearningObjectives []string `yaml:"learning_objectives" json:"learning_objectives"`
}

// RelationshipInput is one catalog relationship row.
type RelationshipInput struct {
	Source string  `yaml:"source" json:"source"`
	Target string  `yaml:"target" json:"target"`
	Type   string  `yaml:"type" json:"type"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// BuildConceptGraph assembles a graph snapshot from a concept catalog and a
// relationship list. Relationships referencing concepts absent from the
// catalog are skipped and reported as warnings rather than failing the build.
func BuildConceptGraph(concepts map[string]ConceptInput, relationships []RelationshipInput) (*ConceptGraph, []string) {
	g := NewConceptGraph()
	ids := make([]string, 0, len(concepts))
	for id := range concepts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := concepts[id]
		name := c.Name
		if name == "" {
			name = id
		}
		_ = g.AddNode(&ConceptNode{
			ID:         id,
			Name:       name,
			SubjectID:  c.SubjectID,
			Difficulty: ParseDifficulty(c.DifficultyLevel),
			Tags:       c.Tags,
			Keywords:   c.Keywords,
			Objectives: c.LearningObjectives,
		})
	}

	var warnings []string
	for _, r := range relationships {
		typ := r.Type
		if typ == "" {
			typ = RelRelated
		}
		weight := r.Weight
		if weight <= 0 {
			weight = 1
		}
		err := g.AddEdge(EdgeData{
			Source: r.Source,
			Target: r.Target,
			Type:   typ,
			Weight: weight,
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped relationship %s->%s (%s): %v", r.Source, r.Target, typ, err))
		}
	}
	return g, warnings
}
