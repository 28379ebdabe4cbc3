package market

import (
	"fmt"
	"math/big"
	"sort"
)

// Storage abstracts the subset of state-manager functionality the market
// ledger needs to persist records.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
	PoolReserved() (*big.Int, error)
	SetPoolReserved(*big.Int) error
}

// storedMarket is the RLP-friendly form of a Market: the side map becomes a
// pair of parallel slices in declaration order and signed timestamps become
// unsigned.
type storedMarket struct {
	Creator   [20]byte
	Label     string
	Sides     []string
	Payouts   []*big.Int
	TotalSize *big.Int
	MaxPayout *big.Int
	Reserve   *big.Int
	Collapsed bool
	Deadline  uint64
	CreatedAt uint64
}

func toStoredMarket(m *Market) *storedMarket {
	sides := append([]string(nil), m.Sides...)
	payouts := make([]*big.Int, len(sides))
	for i, side := range sides {
		payouts[i] = cloneBigInt(m.SidePayouts[side])
	}
	return &storedMarket{
		Creator:   m.Creator,
		Label:     m.Label,
		Sides:     sides,
		Payouts:   payouts,
		TotalSize: cloneBigInt(m.TotalSize),
		MaxPayout: cloneBigInt(m.MaxPayout),
		Reserve:   cloneBigInt(m.Reserve),
		Collapsed: m.Collapsed,
		Deadline:  uint64(m.Deadline),
		CreatedAt: uint64(m.CreatedAt),
	}
}

func (s *storedMarket) toMarket(id [32]byte) (*Market, error) {
	if len(s.Sides) != len(s.Payouts) {
		return nil, fmt.Errorf("market: corrupt record %x: %d sides, %d payouts", id, len(s.Sides), len(s.Payouts))
	}
	payouts := make(map[string]*big.Int, len(s.Sides))
	for i, side := range s.Sides {
		payouts[side] = cloneBigInt(s.Payouts[i])
	}
	return &Market{
		ID:          id,
		Creator:     s.Creator,
		Label:       s.Label,
		Sides:       append([]string(nil), s.Sides...),
		SidePayouts: payouts,
		TotalSize:   cloneBigInt(s.TotalSize),
		MaxPayout:   cloneBigInt(s.MaxPayout),
		Reserve:     cloneBigInt(s.Reserve),
		Collapsed:   s.Collapsed,
		Deadline:    int64(s.Deadline),
		CreatedAt:   int64(s.CreatedAt),
	}, nil
}

func (e *Engine) loadMarket(id [32]byte) (*Market, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var stored storedMarket
	ok, err := e.state.KVGet(marketRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	m, err := stored.toMarket(id)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (e *Engine) storeMarket(m *Market) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.KVPut(marketRecordKey(m.ID), toStoredMarket(m))
}

func (e *Engine) indexMarket(id [32]byte) error {
	return e.state.KVAppend(marketIndexKey, id[:])
}

// ListMarkets returns the identifiers of every market ever opened, sorted for
// deterministic output.
func (e *Engine) ListMarkets() ([][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	raw, err := e.state.KVGetList(marketIndexKey)
	if err != nil {
		return nil, err
	}
	ids := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("market: corrupt index entry of length %d", len(entry))
		}
		var id [32]byte
		copy(id[:], entry)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if ids[i][k] != ids[j][k] {
				return ids[i][k] < ids[j][k]
			}
		}
		return false
	})
	return ids, nil
}
