package database

import (
	"context"
	"fmt"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/domain/repository"
	"crypto-alpha-tracker/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4JSnapshotRepository implements SnapshotRepository interface. Cluster
// and lead-edge state is replaced wholesale each cycle inside one managed
// transaction, so readers never observe a half-written snapshot.
type Neo4JSnapshotRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JSnapshotRepository creates a new Neo4J snapshot repository
func NewNeo4JSnapshotRepository(client *Neo4JClient, logger *logger.Logger) repository.SnapshotRepository {
	return &Neo4JSnapshotRepository{
		client: client,
		logger: logger.WithComponent("neo4j-snapshot-repo"),
	}
}

// ReplaceClusterAssignment replaces all Cluster nodes and their MEMBER_OF
// relationships with the given assignment.
func (r *Neo4JSnapshotRepository) ReplaceClusterAssignment(ctx context.Context, assignment *entity.ClusterAssignment) error {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, "MATCH (c:Cluster) DETACH DELETE c", nil); err != nil {
			return nil, err
		}

		query := `
			CREATE (c:Cluster {
				id: $id,
				token: $token,
				token_symbol: $token_symbol,
				score: $score,
				updated_at: datetime($updated_at)
			})
			WITH c
			UNWIND $members AS member
			MATCH (w:Wallet {id: member})
			MERGE (w)-[:MEMBER_OF]->(c)
		`
		for _, cluster := range assignment.Clusters {
			_, err := tx.Run(ctx, query, map[string]interface{}{
				"id":           cluster.ID,
				"token":        cluster.Token,
				"token_symbol": cluster.TokenSymbol,
				"score":        cluster.Score,
				"updated_at":   cluster.UpdatedAt.UTC().Format(time.RFC3339Nano),
				"members":      cluster.Members,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		return fmt.Errorf("failed to replace cluster assignment: %w", err)
	}

	return nil
}

// ReplaceLeadEdges replaces all LEADS relationships with the given edge set.
func (r *Neo4JSnapshotRepository) ReplaceLeadEdges(ctx context.Context, edges []*entity.LeadEdge) error {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, "MATCH ()-[r:LEADS]->() DELETE r", nil); err != nil {
			return nil, err
		}

		query := `
			MATCH (leader:Wallet {id: $leader})
			MATCH (follower:Wallet {id: $follower})
			CREATE (leader)-[:LEADS {
				token: $token,
				lag_seconds: $lag_seconds,
				confidence: $confidence,
				samples: $samples,
				updated_at: datetime($updated_at)
			}]->(follower)
		`
		for _, edge := range edges {
			_, err := tx.Run(ctx, query, map[string]interface{}{
				"leader":      edge.Leader,
				"follower":    edge.Follower,
				"token":       edge.Token,
				"lag_seconds": edge.Lag.Seconds(),
				"confidence":  edge.Confidence,
				"samples":     edge.Samples,
				"updated_at":  edge.UpdatedAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		return fmt.Errorf("failed to replace lead edges: %w", err)
	}

	return nil
}
