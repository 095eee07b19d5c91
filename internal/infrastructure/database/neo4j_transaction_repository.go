package database

import (
	"context"
	"fmt"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/domain/repository"
	"crypto-alpha-tracker/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/shopspring/decimal"
)

// Neo4JTransactionRepository implements TransactionRepository interface.
// Amounts are stored as decimal strings to keep exact precision.
type Neo4JTransactionRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JTransactionRepository creates a new Neo4J transaction repository
func NewNeo4JTransactionRepository(client *Neo4JClient, logger *logger.Logger) repository.TransactionRepository {
	return &Neo4JTransactionRepository{
		client: client,
		logger: logger.WithComponent("neo4j-transaction-repo"),
	}
}

// AppendTransaction stores a canonical transaction and links it to its
// wallet. MERGE on the id makes redelivery a no-op.
func (r *Neo4JTransactionRepository) AppendTransaction(ctx context.Context, t *entity.Transaction) error {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MERGE (t:Transaction {id: $id})
		ON CREATE SET
			t.chain = $chain,
			t.wallet = $wallet,
			t.token = $token,
			t.token_symbol = $token_symbol,
			t.direction = $direction,
			t.base_amount = $base_amount,
			t.token_amount = $token_amount,
			t.usd_value = $usd_value,
			t.timestamp = datetime($timestamp),
			t.block = $block
		WITH t
		MATCH (w:Wallet {id: $wallet_id})
		MERGE (w)-[:EXECUTED]->(t)
	`

	var usdValue any
	if t.USDValue != nil {
		usdValue = t.USDValue.String()
	}

	params := map[string]interface{}{
		"id":           t.ID,
		"chain":        t.Chain,
		"wallet":       t.Wallet,
		"wallet_id":    t.WalletID(),
		"token":        t.Token,
		"token_symbol": t.TokenSymbol,
		"direction":    string(t.Direction),
		"base_amount":  t.BaseAmount.String(),
		"token_amount": t.TokenAmount.String(),
		"usd_value":    usdValue,
		"timestamp":    t.Timestamp.UTC().Format(time.RFC3339Nano),
		"block":        int64(t.Block),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})

	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// GetTransactionsByWallet retrieves recent transactions for a wallet, newest first
func (r *Neo4JTransactionRepository) GetTransactionsByWallet(ctx context.Context, chain, address string, limit int) ([]*entity.Transaction, error) {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MATCH (w:Wallet {id: $wallet_id})-[:EXECUTED]->(t:Transaction)
		RETURN t.id, t.chain, t.wallet, t.token, t.token_symbol, t.direction,
		       t.base_amount, t.token_amount, t.usd_value, t.timestamp, t.block
		ORDER BY t.timestamp DESC
		LIMIT $limit
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]interface{}{
			"wallet_id": entity.WalletID(chain, address),
			"limit":     limit,
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by wallet: %w", err)
	}

	return collectTransactions(ctx, result)
}

// GetTransactionsByToken retrieves recent transactions for a token, newest first
func (r *Neo4JTransactionRepository) GetTransactionsByToken(ctx context.Context, token string, limit int) ([]*entity.Transaction, error) {
	session := r.client.GetDriver().NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := `
		MATCH (t:Transaction {token: $token})
		RETURN t.id, t.chain, t.wallet, t.token, t.token_symbol, t.direction,
		       t.base_amount, t.token_amount, t.usd_value, t.timestamp, t.block
		ORDER BY t.timestamp DESC
		LIMIT $limit
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]interface{}{
			"token": token,
			"limit": limit,
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by token: %w", err)
	}

	return collectTransactions(ctx, result)
}

func collectTransactions(ctx context.Context, result any) ([]*entity.Transaction, error) {
	var txs []*entity.Transaction
	records := result.(neo4j.ResultWithContext)

	for records.Next(ctx) {
		tx, err := transactionFromValues(records.Record().Values)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// transactionFromValues maps a row in column order id, chain, wallet, token,
// token_symbol, direction, base_amount, token_amount, usd_value, timestamp,
// block.
func transactionFromValues(values []any) (*entity.Transaction, error) {
	baseAmount, err := decimal.NewFromString(values[6].(string))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base amount: %w", err)
	}
	tokenAmount, err := decimal.NewFromString(values[7].(string))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token amount: %w", err)
	}

	tx := &entity.Transaction{
		ID:          values[0].(string),
		Chain:       values[1].(string),
		Wallet:      values[2].(string),
		Token:       values[3].(string),
		TokenSymbol: values[4].(string),
		Direction:   entity.Direction(values[5].(string)),
		BaseAmount:  baseAmount,
		TokenAmount: tokenAmount,
	}

	if usd, ok := values[8].(string); ok {
		v, err := decimal.NewFromString(usd)
		if err != nil {
			return nil, fmt.Errorf("failed to parse usd value: %w", err)
		}
		tx.USDValue = &v
	}
	if ts, ok := values[9].(time.Time); ok {
		tx.Timestamp = ts
	}
	if block, ok := values[10].(int64); ok {
		tx.Block = uint64(block)
	}

	return tx, nil
}
