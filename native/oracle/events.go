package oracle

import (
	"encoding/hex"

	"betpool/core/types"
)

// Event types emitted by the oracle engine.
const (
	EventTypeMarketResolved  = "oracle.market.resolved"
	EventTypeMarketCancelled = "oracle.market.cancelled"
)

type resolutionEvent struct {
	evt *types.Event
}

func (e resolutionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e resolutionEvent) Event() *types.Event { return e.evt }

func newResolutionEvent(eventType string, id [32]byte, winner string) *types.Event {
	attrs := map[string]string{
		"marketId": hex.EncodeToString(id[:]),
	}
	if winner != "" {
		attrs["winner"] = winner
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
