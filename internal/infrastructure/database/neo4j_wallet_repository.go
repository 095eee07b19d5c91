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

// Neo4JWalletRepository implements WalletRepository interface
type Neo4JWalletRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JWalletRepository creates a new Neo4J wallet repository
func NewNeo4JWalletRepository(client *Neo4JClient, logger *logger.Logger) repository.WalletRepository {
	return &Neo4JWalletRepository{
		client: client,
		logger: logger.WithComponent("neo4j-wallet-repo"),
	}
}

// CreateOrUpdateWallet creates a new wallet or refreshes its activity fields.
// The tier is only set on create; transitions go through UpdateTier so a
// late-arriving event can never reset a scored wallet to Unknown.
func (r *Neo4JWalletRepository) CreateOrUpdateWallet(ctx context.Context, wallet *entity.Wallet) error {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MERGE (w:Wallet {id: $id})
		ON CREATE SET
			w.chain = $chain,
			w.address = $address,
			w.label = $label,
			w.tier = $tier,
			w.first_seen = datetime($first_seen),
			w.last_seen = datetime($last_seen),
			w.tx_count = $tx_count
		ON MATCH SET
			w.last_seen = datetime($last_seen),
			w.tx_count = w.tx_count + $tx_count
	`

	params := map[string]interface{}{
		"id":         wallet.ID(),
		"chain":      wallet.Chain,
		"address":    wallet.Address,
		"label":      wallet.Label,
		"tier":       string(wallet.Tier),
		"first_seen": wallet.FirstSeen.UTC().Format(time.RFC3339Nano),
		"last_seen":  wallet.LastSeen.UTC().Format(time.RFC3339Nano),
		"tx_count":   wallet.TxCount,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})

	if err != nil {
		return fmt.Errorf("failed to create/update wallet: %w", err)
	}

	return nil
}

// UpdateTier records a tier transition for a wallet
func (r *Neo4JWalletRepository) UpdateTier(ctx context.Context, chain, address string, tier entity.Tier) error {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MATCH (w:Wallet {id: $id})
		SET w.tier = $tier
	`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]interface{}{
			"id":   entity.WalletID(chain, address),
			"tier": string(tier),
		})
	})

	if err != nil {
		return fmt.Errorf("failed to update wallet tier: %w", err)
	}

	return nil
}

// GetWallet retrieves a wallet by chain and address
func (r *Neo4JWalletRepository) GetWallet(ctx context.Context, chain, address string) (*entity.Wallet, error) {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MATCH (w:Wallet {id: $id})
		RETURN w.chain, w.address, w.label, w.tier, w.first_seen, w.last_seen, w.tx_count
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]interface{}{"id": entity.WalletID(chain, address)})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	records := result.(neo4j.ResultWithContext)
	if !records.Next(ctx) {
		return nil, fmt.Errorf("wallet not found: %s", entity.WalletID(chain, address))
	}

	return walletFromValues(records.Record().Values), nil
}

// GetWalletsByTier retrieves wallets in a given tier
func (r *Neo4JWalletRepository) GetWalletsByTier(ctx context.Context, tier entity.Tier, limit int) ([]*entity.Wallet, error) {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MATCH (w:Wallet {tier: $tier})
		RETURN w.chain, w.address, w.label, w.tier, w.first_seen, w.last_seen, w.tx_count
		ORDER BY w.tx_count DESC
		LIMIT $limit
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]interface{}{
			"tier":  string(tier),
			"limit": limit,
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get wallets by tier: %w", err)
	}

	var wallets []*entity.Wallet
	records := result.(neo4j.ResultWithContext)

	for records.Next(ctx) {
		wallets = append(wallets, walletFromValues(records.Record().Values))
	}

	return wallets, nil
}

// walletFromValues maps a wallet row in column order chain, address, label,
// tier, first_seen, last_seen, tx_count.
func walletFromValues(values []any) *entity.Wallet {
	w := &entity.Wallet{
		Chain:   values[0].(string),
		Address: values[1].(string),
		Tier:    entity.Tier(values[3].(string)),
		TxCount: values[6].(int64),
	}
	if label, ok := values[2].(string); ok {
		w.Label = label
	}
	if ts, ok := values[4].(time.Time); ok {
		w.FirstSeen = ts
	}
	if ts, ok := values[5].(time.Time); ok {
		w.LastSeen = ts
	}
	return w
}
