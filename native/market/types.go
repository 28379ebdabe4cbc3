package market

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Market aggregates the per-market ledger state: cumulative payout promised
// per side, total stake received and the collateral reserved against the
// worst-case obligation. While the market is open the reserve equals
// max(TotalSize, MaxPayout); the first settlement after resolution collapses
// it to the true obligation and flips Collapsed.
type Market struct {
	ID          [32]byte
	Creator     [20]byte
	Label       string
	Sides       []string
	SidePayouts map[string]*big.Int
	TotalSize   *big.Int
	MaxPayout   *big.Int
	Reserve     *big.Int
	Collapsed   bool
	Deadline    int64
	CreatedAt   int64
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Sides = append([]string(nil), m.Sides...)
	clone.SidePayouts = make(map[string]*big.Int, len(m.SidePayouts))
	for side, payout := range m.SidePayouts {
		clone.SidePayouts[side] = cloneBigInt(payout)
	}
	clone.TotalSize = cloneBigInt(m.TotalSize)
	clone.MaxPayout = cloneBigInt(m.MaxPayout)
	clone.Reserve = cloneBigInt(m.Reserve)
	return &clone
}

// HasSide reports whether side is one of the market's declared sides.
func (m *Market) HasSide(side string) bool {
	if m == nil {
		return false
	}
	_, ok := m.SidePayouts[side]
	return ok
}

// SidePayout returns a copy of the cumulative payout promised on side, or nil
// when the side is unknown. The nil return is deliberate: a missing side is a
// validation error, not an implicit zero.
func (m *Market) SidePayout(side string) *big.Int {
	if m == nil {
		return nil
	}
	payout, ok := m.SidePayouts[side]
	if !ok {
		return nil
	}
	return cloneBigInt(payout)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// NewMarketID derives the deterministic market identifier from the creator
// and a creator-chosen label.
func NewMarketID(creator [20]byte, label string) [32]byte {
	return ethcrypto.Keccak256Hash(creator[:], []byte(strings.TrimSpace(label)))
}

// NormalizeSide canonicalises a side key. Side keys are opaque but must be
// non-empty after trimming and are compared case-insensitively.
func NormalizeSide(side string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(side))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty side key", ErrInvalidSide)
	}
	return trimmed, nil
}

// SanitizeSides validates and canonicalises a declared side set: at least two
// sides, each non-empty and unique after normalisation.
func SanitizeSides(sides []string) ([]string, error) {
	if len(sides) < 2 {
		return nil, fmt.Errorf("%w: a market needs at least two sides", ErrInvalidParams)
	}
	normalized := make([]string, 0, len(sides))
	seen := make(map[string]struct{}, len(sides))
	for _, side := range sides {
		canonical, err := NormalizeSide(side)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("%w: duplicate side %q", ErrInvalidParams, canonical)
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}
	return normalized, nil
}

// newMarket builds an empty market with zeroed aggregates for every side.
func newMarket(id [32]byte, creator [20]byte, label string, sides []string, deadline, createdAt int64) *Market {
	payouts := make(map[string]*big.Int, len(sides))
	for _, side := range sides {
		payouts[side] = big.NewInt(0)
	}
	return &Market{
		ID:          id,
		Creator:     creator,
		Label:       strings.TrimSpace(label),
		Sides:       append([]string(nil), sides...),
		SidePayouts: payouts,
		TotalSize:   big.NewInt(0),
		MaxPayout:   big.NewInt(0),
		Reserve:     big.NewInt(0),
		Deadline:    deadline,
		CreatedAt:   createdAt,
	}
}
