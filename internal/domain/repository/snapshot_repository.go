package repository

import (
	"context"

	"crypto-alpha-tracker/internal/domain/entity"
)

// SnapshotRepository persists the per-cycle analysis outputs. Each cycle
// writes a complete replacement snapshot, never an append log, so storage
// stays bounded by the size of the current state.
type SnapshotRepository interface {
	// ReplaceClusterAssignment replaces the stored cluster assignment with
	// the given one
	ReplaceClusterAssignment(ctx context.Context, assignment *entity.ClusterAssignment) error

	// ReplaceLeadEdges replaces the stored lead/follower edge set
	ReplaceLeadEdges(ctx context.Context, edges []*entity.LeadEdge) error
}
