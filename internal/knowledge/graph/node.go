package graph

import "strings"

// Relationship type constants used across the catalog and inference layers.
const (
	RelPrerequisite = "prerequisite"
	RelEnables      = "enables"
	RelRelated      = "related"
	RelSimilarTo    = "similar_to"
	RelLeadsTo      = "leads_to"
	RelRequires     = "requires"
	RelComponentOf  = "component_of"
	RelHasComponent = "has_component"
)

// Difficulty is the ordinal difficulty scale of the catalog.
type Difficulty int

const (
	DifficultyBeginner Difficulty = iota + 1
	DifficultyElementary
	DifficultyIntermediate
	DifficultyAdvanced
	DifficultyExpert
)

func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner":
		return DifficultyBeginner
	case "elementary":
		return DifficultyElementary
	case "intermediate":
		return DifficultyIntermediate
	case "advanced":
		return DifficultyAdvanced
	case "expert":
		return DifficultyExpert
	default:
		return DifficultyIntermediate
	}
}

func (d Difficulty) String() string {
	switch d {
	case DifficultyBeginner:
		return "beginner"
	case DifficultyElementary:
		return "elementary"
	case DifficultyIntermediate:
		return "intermediate"
	case DifficultyAdvanced:
		return "advanced"
	case DifficultyExpert:
		return "expert"
	default:
		return "intermediate"
	}
}

// Hours is the per-concept remediation effort estimate by difficulty.
func (d Difficulty) Hours() float64 {
	switch d {
	case DifficultyBeginner:
		return 0.5
	case DifficultyElementary:
		return 1
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 4
	case DifficultyExpert:
		return 8
	default:
		return 2
	}
}

// ConceptNode is one concept in the catalog. Nodes are immutable once loaded
// into a graph snapshot; the graph owns them.
type ConceptNode struct {
	ID         string
	Name       string
	SubjectID  string
	Difficulty Difficulty
	Tags       []string
	Keywords   []string
	Objectives []string
}

// EdgeData is one typed, directed relationship between two concepts.
// Inferred edges are virtual: they live only inside a graph snapshot and are
// never written back to the source catalog.
type EdgeData struct {
	Source     string
	Target     string
	Type       string
	Weight     float64
	Inferred   bool
	Confidence float64
	RuleID     string
}
