package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"betpool/crypto"
	"betpool/native/certs"
	"betpool/native/fixedpoint"
	"betpool/native/market"
)

// MarketResult is the JSON view of a market. Amounts are rendered as decimal
// strings in collateral units.
type MarketResult struct {
	ID          string            `json:"id"`
	Creator     string            `json:"creator"`
	Label       string            `json:"label"`
	Sides       []string          `json:"sides"`
	SidePayouts map[string]string `json:"sidePayouts"`
	TotalSize   string            `json:"totalSize"`
	MaxPayout   string            `json:"maxPayout"`
	Reserve     string            `json:"reserve"`
	Collapsed   bool              `json:"collapsed"`
	Deadline    int64             `json:"deadline"`
	CreatedAt   int64             `json:"createdAt"`
}

// CertificateResult is the JSON view of a bet certificate.
type CertificateResult struct {
	ID       string `json:"id"`
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
	Stake    string `json:"stake"`
	Payout   string `json:"payout"`
	Owner    string `json:"owner"`
	MintedAt int64  `json:"mintedAt"`
}

// PoolResult reports the pool's collateral position.
type PoolResult struct {
	Balance  string `json:"balance"`
	Reserved string `json:"reserved"`
	Free     string `json:"free"`
}

// OddsProofParam is the wire form of an odds attestation.
type OddsProofParam struct {
	Domain    string `json:"domain"`
	MarketID  string `json:"marketId"`
	Side      string `json:"side"`
	Odds      string `json:"odds"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"`
}

func marketResultFrom(m *market.Market) MarketResult {
	payouts := make(map[string]string, len(m.SidePayouts))
	for side, payout := range m.SidePayouts {
		payouts[side] = fixedpoint.Format(payout)
	}
	return MarketResult{
		ID:          hex.EncodeToString(m.ID[:]),
		Creator:     crypto.MustAddress(m.Creator[:]).String(),
		Label:       m.Label,
		Sides:       append([]string(nil), m.Sides...),
		SidePayouts: payouts,
		TotalSize:   fixedpoint.Format(m.TotalSize),
		MaxPayout:   fixedpoint.Format(m.MaxPayout),
		Reserve:     fixedpoint.Format(m.Reserve),
		Collapsed:   m.Collapsed,
		Deadline:    m.Deadline,
		CreatedAt:   m.CreatedAt,
	}
}

func certificateResultFrom(c *certs.Certificate) CertificateResult {
	return CertificateResult{
		ID:       hex.EncodeToString(c.ID[:]),
		MarketID: hex.EncodeToString(c.MarketID[:]),
		Side:     c.Side,
		Stake:    fixedpoint.Format(c.Stake),
		Payout:   fixedpoint.Format(c.Payout),
		Owner:    crypto.MustAddress(c.Owner[:]).String(),
		MintedAt: c.MintedAt,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object, got %d", len(req.Params))
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params payload: %w", err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", value, err)
	}
	return addr.Raw(), nil
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid identifier %q: %w", value, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("identifier must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, err := fixedpoint.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseSignature(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	return raw, nil
}
