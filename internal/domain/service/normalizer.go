package service

import (
	"fmt"
	"sort"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"

	"github.com/shopspring/decimal"
)

// Drop reasons reported by Normalize. Dropped events are counted, never
// classified into a fourth transaction kind.
const (
	DropUnknownChain   = "unknown_chain"
	DropMalformed      = "malformed"
	DropDust           = "dust"
	DropNoTrade        = "no_trade"
	DropUnclassifiable = "unclassifiable"
	DropDuplicate      = "duplicate"
)

// chainRules is the per-chain classification table: which assets count as the
// base side of a trade, and the dust threshold tuned for that chain.
type chainRules struct {
	nativeAsset string
	baseAssets  map[string]bool // native + stablecoins, wrapped variants folded
	wrapped     map[string]bool // wrapped-native aliases, folded into native
	minAmount   decimal.Decimal
}

// Normalizer maps raw per-chain events into canonical Transactions. Direction
// is derived solely from the tracked wallet's own signed balance deltas;
// counterparty deltas never appear in a RawEvent and are never consulted.
type Normalizer struct {
	chains map[string]chainRules
}

// NewNormalizer creates a normalizer from the per-chain configuration.
func NewNormalizer(chains map[string]config.ChainConfig) *Normalizer {
	rules := make(map[string]chainRules, len(chains))
	for id, cc := range chains {
		r := chainRules{
			nativeAsset: cc.NativeAsset,
			baseAssets:  map[string]bool{cc.NativeAsset: true},
			wrapped:     map[string]bool{},
			minAmount:   decimal.NewFromFloat(cc.MinAmount),
		}
		for _, w := range cc.WrappedNative {
			r.wrapped[w] = true
		}
		for _, s := range cc.Stablecoins {
			r.baseAssets[s] = true
		}
		rules[id] = r
	}
	return &Normalizer{chains: rules}
}

// assetFlow is one non-base asset's net movement within an event.
type assetFlow struct {
	asset  string
	symbol string
	amount decimal.Decimal // absolute value
}

// Normalize maps a raw event into zero or more canonical Transactions.
// A nil slice is accompanied by a non-empty drop reason. Multi-leg events
// decompose into one logical Transaction per non-base asset moved; leg ids
// carry a positional suffix to stay globally unique.
func (n *Normalizer) Normalize(ev *entity.RawEvent) ([]*entity.Transaction, string) {
	rules, ok := n.chains[ev.Chain]
	if !ok {
		return nil, DropUnknownChain
	}
	if ev.Wallet == "" || ev.TxID == "" || ev.Timestamp.IsZero() || len(ev.Deltas) == 0 {
		return nil, DropMalformed
	}
	if ev.Family != entity.FamilyAccount {
		// Only account-model collectors exist today; anything else is a
		// contract violation upstream.
		return nil, DropMalformed
	}

	// Fold deltas into net movement per asset. Wrapped-native variants are
	// the same base asset as the native balance: folding them here is what
	// keeps a wrap/unwrap leg from flipping a classification.
	nets := map[string]decimal.Decimal{}
	symbols := map[string]string{}
	for _, d := range ev.Deltas {
		if d.Asset == "" {
			return nil, DropMalformed
		}
		asset := d.Asset
		if rules.wrapped[asset] {
			asset = rules.nativeAsset
		}
		nets[asset] = nets[asset].Add(d.Net())
		if d.Symbol != "" && symbols[asset] == "" {
			symbols[asset] = d.Symbol
		}
	}

	// Net base flow across native + stablecoins, and non-base token flows
	// above the chain's dust threshold.
	baseNet := decimal.Zero
	var gained, lost []assetFlow
	for asset, net := range nets {
		if rules.baseAssets[asset] {
			baseNet = baseNet.Add(net)
			continue
		}
		abs := net.Abs()
		if abs.LessThan(rules.minAmount) {
			continue
		}
		flow := assetFlow{asset: asset, symbol: symbols[asset], amount: abs}
		if net.Sign() > 0 {
			gained = append(gained, flow)
		} else {
			lost = append(lost, flow)
		}
	}

	baseMoved := baseNet.Abs().GreaterThanOrEqual(rules.minAmount)
	if len(gained) == 0 && len(lost) == 0 {
		if baseMoved {
			// Plain native/stable transfer, not a trade.
			return nil, DropNoTrade
		}
		return nil, DropDust
	}

	sortFlows(gained)
	sortFlows(lost)

	var txs []*entity.Transaction
	switch {
	case len(gained) > 0 && len(lost) > 0:
		// Token left, token arrived: swap. Keyed on the acquired side; the
		// largest departing token is the counter asset.
		for _, g := range gained {
			txs = append(txs, n.buildTx(ev, rules, entity.DirectionSwap, g, lost[0].amount))
		}
	case len(gained) > 0 && baseMoved && baseNet.Sign() < 0:
		// Base asset decreased, tokens increased: buy. The base outflow is
		// split evenly across legs; see multi-leg note in the design doc.
		per := baseNet.Abs().Div(decimal.NewFromInt(int64(len(gained))))
		for _, g := range gained {
			txs = append(txs, n.buildTx(ev, rules, entity.DirectionBuy, g, per))
		}
	case len(lost) > 0 && baseMoved && baseNet.Sign() > 0:
		// Tokens decreased, base asset increased: sell.
		per := baseNet.Div(decimal.NewFromInt(int64(len(lost))))
		for _, l := range lost {
			txs = append(txs, n.buildTx(ev, rules, entity.DirectionSell, l, per))
		}
	default:
		// Token moved one way with no counter-flow: an inbound airdrop or an
		// outbound transfer. Neither is a trade, and inventing a direction
		// here is exactly what this component must never do.
		return nil, DropUnclassifiable
	}

	// Suffix leg ids when an event decomposes, keeping ids globally unique.
	if len(txs) > 1 {
		for i, tx := range txs[1:] {
			tx.ID = fmt.Sprintf("%s#%d", tx.ID, i+2)
		}
	}
	return txs, ""
}

// buildTx assembles one canonical transaction leg.
func (n *Normalizer) buildTx(ev *entity.RawEvent, rules chainRules, dir entity.Direction, flow assetFlow, baseAmount decimal.Decimal) *entity.Transaction {
	tx := &entity.Transaction{
		ID:          fmt.Sprintf("%s:%s", ev.Chain, ev.TxID),
		Chain:       ev.Chain,
		Wallet:      ev.Wallet,
		Token:       flow.asset,
		TokenSymbol: flow.symbol,
		Direction:   dir,
		BaseAmount:  baseAmount,
		TokenAmount: flow.amount,
		Timestamp:   ev.Timestamp,
		Block:       ev.Block,
	}
	// Missing price data is degraded but valid: USDValue stays nil.
	if price, ok := ev.USDPrices[flow.asset]; ok {
		usd := flow.amount.Mul(price)
		tx.USDValue = &usd
	}
	return tx
}

// sortFlows orders flows by amount descending, asset id as tie-break, so leg
// decomposition is deterministic.
func sortFlows(flows []assetFlow) {
	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].amount.Equal(flows[j].amount) {
			return flows[i].amount.GreaterThan(flows[j].amount)
		}
		return flows[i].asset < flows[j].asset
	})
}
