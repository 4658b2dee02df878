package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/platform/envutil"
)

// Client is the optional graph-database catalog source. Unconfigured
// environments get (nil, nil) from NewFromEnv and fall back to the file
// source.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	uri := envutil.String("NEO4J_URI", "")
	if uri == "" {
		return nil, nil
	}
	user := envutil.String("NEO4J_USER", "neo4j")
	password := envutil.String("NEO4J_PASSWORD", "")
	database := envutil.String("NEO4J_DATABASE", "")
	timeout := time.Duration(envutil.Int("NEO4J_TIMEOUT_SECONDS", 10)) * time.Second
	maxPool := envutil.Int("NEO4J_MAX_POOL_SIZE", 50)

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

// LoadCatalog reads (:Concept) nodes and their typed relationships into the
// catalog shape the graph builder consumes.
func (c *Client) LoadCatalog(ctx context.Context) (map[string]graph.ConceptInput, []graph.RelationshipInput, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.Database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	concepts := make(map[string]graph.ConceptInput)
	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (c:Concept)
			RETURN c.id AS id, c.name AS name, c.subject_id AS subject_id,
			       c.difficulty_level AS difficulty_level, c.tags AS tags,
			       c.keywords AS keywords, c.learning_objectives AS learning_objectives`, nil)
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			rec := result.Record()
			id := stringValue(rec, "id")
			if id == "" {
				continue
			}
			concepts[id] = graph.ConceptInput{
				Name:               stringValue(rec, "name"),
				SubjectID:          stringValue(rec, "subject_id"),
				DifficultyLevel:    stringValue(rec, "difficulty_level"),
				Tags:               stringSlice(rec, "tags"),
				Keywords:           stringSlice(rec, "keywords"),
				LearningObjectives: stringSlice(rec, "learning_objectives"),
			}
		}
		return nil, result.Err()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("neo4jdb: load concepts: %w", err)
	}

	var relationships []graph.RelationshipInput
	_, err = session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (a:Concept)-[r:RELATES]->(b:Concept)
			RETURN a.id AS source, b.id AS target, r.type AS type, r.weight AS weight`, nil)
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			rec := result.Record()
			rel := graph.RelationshipInput{
				Source: stringValue(rec, "source"),
				Target: stringValue(rec, "target"),
				Type:   stringValue(rec, "type"),
			}
			if w, ok := rec.Get("weight"); ok {
				if f, ok := w.(float64); ok {
					rel.Weight = f
				}
			}
			relationships = append(relationships, rel)
		}
		return nil, result.Err()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("neo4jdb: load relationships: %w", err)
	}

	c.log.Debug("catalog loaded from graph database", "concepts", len(concepts), "relationships", len(relationships))
	return concepts, relationships, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringSlice(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
