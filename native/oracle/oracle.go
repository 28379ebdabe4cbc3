// Package oracle is the resolution authority for markets: it records which
// markets and sides exist, and accepts exactly one authoritative outcome per
// market from a role-gated resolver address. The market engine consumes it
// read-only.
package oracle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"betpool/core/events"
	"betpool/core/types"
)

// RoleResolver is the role a caller needs to post resolutions.
const RoleResolver = "ROLE_ORACLE"

var (
	errNilState = errors.New("oracle engine: state not configured")
	errNilRoles = errors.New("oracle engine: role checker not configured")

	// ErrUnknownMarket is returned for markets never registered.
	ErrUnknownMarket = errors.New("oracle: unknown market")
	// ErrUnknownSide is returned when the winner is not a registered side.
	ErrUnknownSide = errors.New("oracle: unknown side")
	// ErrAlreadyResolved is returned when a market has a recorded outcome.
	ErrAlreadyResolved = errors.New("oracle: market already resolved")
	// ErrNotResolved is returned when no outcome has been recorded yet.
	ErrNotResolved = errors.New("oracle: market not resolved")
	// ErrUnauthorized is returned when the caller lacks the resolver role.
	ErrUnauthorized = errors.New("oracle: caller lacks resolver role")
	// ErrInvalidProof is returned when an odds attestation fails verification.
	ErrInvalidProof = errors.New("oracle: invalid odds proof")
)

// Storage abstracts the subset of state-manager functionality the oracle
// needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
}

// RoleChecker answers role-membership queries.
type RoleChecker interface {
	HasRole(role string, addr [20]byte) bool
}

var (
	registrationPrefix = []byte("oracle/market/")
	resolutionPrefix   = []byte("oracle/resolution/")
)

func registrationKey(id [32]byte) []byte {
	buf := make([]byte, len(registrationPrefix)+len(id))
	copy(buf, registrationPrefix)
	copy(buf[len(registrationPrefix):], id[:])
	return buf
}

func resolutionKey(id [32]byte) []byte {
	buf := make([]byte, len(resolutionPrefix)+len(id))
	copy(buf, resolutionPrefix)
	copy(buf[len(resolutionPrefix):], id[:])
	return buf
}

type storedRegistration struct {
	Sides []string
}

type storedResolution struct {
	Winner     string
	Cancelled  bool
	ResolvedAt uint64
}

// Engine records registrations and resolutions in state.
type Engine struct {
	state   Storage
	roles   RoleChecker
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an oracle engine with a no-op emitter.
func NewEngine(state Storage, roles RoleChecker) *Engine {
	return &Engine{
		state:   state,
		roles:   roles,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterMarket records a market and its side set so later resolutions can
// be validated. Registration is idempotent for identical side sets.
func (e *Engine) RegisterMarket(id [32]byte, sides []string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(sides) < 2 {
		return fmt.Errorf("oracle: market %x needs at least two sides", id)
	}
	normalized := make([]string, 0, len(sides))
	for _, side := range sides {
		trimmed := strings.ToLower(strings.TrimSpace(side))
		if trimmed == "" {
			return fmt.Errorf("oracle: empty side key for market %x", id)
		}
		normalized = append(normalized, trimmed)
	}
	var existing storedRegistration
	ok, err := e.state.KVGet(registrationKey(id), &existing)
	if err != nil {
		return err
	}
	if ok {
		if len(existing.Sides) != len(normalized) {
			return fmt.Errorf("oracle: market %x already registered with different sides", id)
		}
		for i, side := range existing.Sides {
			if side != normalized[i] {
				return fmt.Errorf("oracle: market %x already registered with different sides", id)
			}
		}
		return nil
	}
	return e.state.KVPut(registrationKey(id), &storedRegistration{Sides: normalized})
}

// Resolve records the winning side for a market. Outcomes are write-once.
func (e *Engine) Resolve(caller [20]byte, id [32]byte, winner string) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	reg, ok, err := e.registration(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownMarket
	}
	canonical := strings.ToLower(strings.TrimSpace(winner))
	found := false
	for _, side := range reg.Sides {
		if side == canonical {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownSide, winner)
	}
	resolved, err := e.state.KVHas(resolutionKey(id))
	if err != nil {
		return err
	}
	if resolved {
		return ErrAlreadyResolved
	}
	record := &storedResolution{Winner: canonical, ResolvedAt: uint64(e.nowFn())}
	if err := e.state.KVPut(resolutionKey(id), record); err != nil {
		return err
	}
	e.emit(newResolutionEvent(EventTypeMarketResolved, id, canonical))
	return nil
}

// Cancel voids a market. Like Resolve, the outcome is write-once.
func (e *Engine) Cancel(caller [20]byte, id [32]byte) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	_, ok, err := e.registration(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownMarket
	}
	resolved, err := e.state.KVHas(resolutionKey(id))
	if err != nil {
		return err
	}
	if resolved {
		return ErrAlreadyResolved
	}
	record := &storedResolution{Cancelled: true, ResolvedAt: uint64(e.nowFn())}
	if err := e.state.KVPut(resolutionKey(id), record); err != nil {
		return err
	}
	e.emit(newResolutionEvent(EventTypeMarketCancelled, id, ""))
	return nil
}

func (e *Engine) authorize(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.roles == nil {
		return errNilRoles
	}
	if !e.roles.HasRole(RoleResolver, caller) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) registration(id [32]byte) (*storedRegistration, bool, error) {
	var reg storedRegistration
	ok, err := e.state.KVGet(registrationKey(id), &reg)
	if err != nil || !ok {
		return nil, false, err
	}
	return &reg, true, nil
}

func (e *Engine) resolution(id [32]byte) (*storedResolution, bool, error) {
	var res storedResolution
	ok, err := e.state.KVGet(resolutionKey(id), &res)
	if err != nil || !ok {
		return nil, false, err
	}
	return &res, true, nil
}

// --- Resolver view consumed by the market engine ---

// MarketExists reports whether the market was ever registered.
func (e *Engine) MarketExists(id [32]byte) bool {
	_, ok, err := e.registration(id)
	return err == nil && ok
}

// SideExists reports whether side is registered for the market.
func (e *Engine) SideExists(id [32]byte, side string) bool {
	reg, ok, err := e.registration(id)
	if err != nil || !ok {
		return false
	}
	canonical := strings.ToLower(strings.TrimSpace(side))
	for _, s := range reg.Sides {
		if s == canonical {
			return true
		}
	}
	return false
}

// HasWinningSide reports whether a winner has been recorded. A cancelled
// market has no winning side.
func (e *Engine) HasWinningSide(id [32]byte) (bool, error) {
	res, ok, err := e.resolution(id)
	if err != nil {
		return false, err
	}
	return ok && !res.Cancelled, nil
}

// WinningSide returns the recorded winner.
func (e *Engine) WinningSide(id [32]byte) (string, error) {
	res, ok, err := e.resolution(id)
	if err != nil {
		return "", err
	}
	if !ok || res.Cancelled {
		return "", ErrNotResolved
	}
	return res.Winner, nil
}

// IsCancelled reports whether the market was voided.
func (e *Engine) IsCancelled(id [32]byte) bool {
	res, ok, err := e.resolution(id)
	return err == nil && ok && res.Cancelled
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(resolutionEvent{evt: event})
}
