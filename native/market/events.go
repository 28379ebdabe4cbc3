package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"betpool/core/types"
)

// Event types emitted by the market engine.
const (
	EventTypeMarketCreated    = "market.created"
	EventTypeBetPlaced        = "market.bet.placed"
	EventTypeReserveCollapsed = "market.reserve.collapsed"
	EventTypeBetClaimed       = "market.bet.claimed"
	EventTypeBetWithdrawn     = "market.bet.withdrawn"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent returns the canonical payload for a newly opened market.
func NewCreatedEvent(m *Market) *types.Event {
	return &types.Event{
		Type: EventTypeMarketCreated,
		Attributes: map[string]string{
			"marketId": hex.EncodeToString(m.ID[:]),
			"label":    m.Label,
			"sides":    strconv.Itoa(len(m.Sides)),
			"deadline": strconv.FormatInt(m.Deadline, 10),
		},
	}
}

// NewBetPlacedEvent returns the canonical payload emitted for every accepted
// bet.
func NewBetPlacedEvent(m *Market, betID [32]byte, side string, stake, payout *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBetPlaced,
		Attributes: map[string]string{
			"marketId": hex.EncodeToString(m.ID[:]),
			"betId":    hex.EncodeToString(betID[:]),
			"side":     side,
			"stake":    bigString(stake),
			"payout":   bigString(payout),
			"reserve":  bigString(m.Reserve),
		},
	}
}

// NewReserveCollapsedEvent records the one-time shrink of a market's reserve
// to its true obligation.
func NewReserveCollapsedEvent(m *Market, released *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeReserveCollapsed,
		Attributes: map[string]string{
			"marketId": hex.EncodeToString(m.ID[:]),
			"released": bigString(released),
			"reserve":  bigString(m.Reserve),
		},
	}
}

// NewBetClaimedEvent records a winning bet settling against the pool.
func NewBetClaimedEvent(marketID, betID [32]byte, owner [20]byte, payout *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBetClaimed,
		Attributes: map[string]string{
			"marketId": hex.EncodeToString(marketID[:]),
			"betId":    hex.EncodeToString(betID[:]),
			"owner":    hex.EncodeToString(owner[:]),
			"payout":   bigString(payout),
		},
	}
}

// NewBetWithdrawnEvent records a cancelled-market bet recovering its stake.
func NewBetWithdrawnEvent(marketID, betID [32]byte, owner [20]byte, stake *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBetWithdrawn,
		Attributes: map[string]string{
			"marketId": hex.EncodeToString(marketID[:]),
			"betId":    hex.EncodeToString(betID[:]),
			"owner":    hex.EncodeToString(owner[:]),
			"stake":    bigString(stake),
		},
	}
}
