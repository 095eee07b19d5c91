package repository

import (
	"context"

	"crypto-alpha-tracker/internal/domain/entity"
)

// WalletRepository defines the interface for wallet persistence
type WalletRepository interface {
	// CreateOrUpdateWallet creates a wallet on first observation or refreshes
	// its activity fields. Wallets are never deleted.
	CreateOrUpdateWallet(ctx context.Context, wallet *entity.Wallet) error

	// UpdateTier records a tier transition for a wallet
	UpdateTier(ctx context.Context, chain, address string, tier entity.Tier) error

	// GetWallet retrieves a wallet by chain and address
	GetWallet(ctx context.Context, chain, address string) (*entity.Wallet, error)

	// GetWalletsByTier retrieves wallets in a given tier
	GetWalletsByTier(ctx context.Context, tier entity.Tier, limit int) ([]*entity.Wallet, error)
}
