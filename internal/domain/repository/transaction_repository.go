package repository

import (
	"context"

	"crypto-alpha-tracker/internal/domain/entity"
)

// TransactionRepository defines the interface for the append-only
// transaction log
type TransactionRepository interface {
	// AppendTransaction stores a canonical transaction. Appending an id that
	// already exists is a no-op.
	AppendTransaction(ctx context.Context, tx *entity.Transaction) error

	// GetTransactionsByWallet retrieves recent transactions for a wallet,
	// newest first
	GetTransactionsByWallet(ctx context.Context, chain, address string, limit int) ([]*entity.Transaction, error)

	// GetTransactionsByToken retrieves recent transactions for a token,
	// newest first
	GetTransactionsByToken(ctx context.Context, token string, limit int) ([]*entity.Transaction, error)
}
