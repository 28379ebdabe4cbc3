// Package market implements the peer-to-pool betting ledger: markets with a
// declared side set, a payout curve that squashes large obligations into the
// pool's free liquidity, and reserve accounting that keeps the pool solvent
// across the whole bet lifecycle.
package market

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"betpool/core/events"
	"betpool/core/types"
	"betpool/native/certs"
	"betpool/native/fees"
)

// TokenLedger moves collateral between bettor accounts and the pool vault.
type TokenLedger interface {
	TransferIn(from [20]byte, amount *big.Int) error
	TransferOut(to [20]byte, amount *big.Int) error
	BalanceOf() (*big.Int, error)
	AccountBalance(addr [20]byte) (*big.Int, error)
}

// Certificates is the bet-certificate surface the engine consumes. The certs
// registry satisfies it directly.
type Certificates interface {
	Mint(owner [20]byte, marketID [32]byte, side string, stake, payout *big.Int) (*certs.Certificate, error)
	Get(id [32]byte) (*certs.Certificate, bool, error)
	Burn(id [32]byte) error
	Settled(id [32]byte) (bool, error)
}

// Resolver reports resolution outcomes recorded by the oracle module.
type Resolver interface {
	HasWinningSide(id [32]byte) (bool, error)
	WinningSide(id [32]byte) (string, error)
	IsCancelled(id [32]byte) bool
}

// FeeCollector charges placement fees. Quote is pure; Collect moves the fee
// and advances the payer's usage counter.
type FeeCollector interface {
	Quote(payer [20]byte, gross *big.Int, domain string) (fee, net *big.Int, err error)
	Collect(payer [20]byte, gross *big.Int, domain string) (*big.Int, error)
}

// Engine orchestrates the market lifecycle against persistent state. All
// operations assume external serialisation; the engine itself holds no locks.
type Engine struct {
	state    Storage
	token    TokenLedger
	certs    Certificates
	resolver Resolver
	fees     FeeCollector
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs a market engine bound to its collaborators. The fee
// collector is optional and attached via SetFeeCollector.
func NewEngine(state Storage, token TokenLedger, registry Certificates, resolver Resolver) *Engine {
	return &Engine{
		state:    state,
		token:    token,
		certs:    registry,
		resolver: resolver,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetFeeCollector attaches the fee engine. A nil collector disables fees.
func (e *Engine) SetFeeCollector(collector FeeCollector) {
	e.fees = collector
}

// SetEmitter configures the event emitter. Passing nil restores the no-op
// emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the engine's time source, primarily for deterministic
// tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Now reports the engine's current time. Callers that gate odds proofs use it
// so expiry checks share the engine's clock.
func (e *Engine) Now() int64 {
	return e.nowFn()
}

func (e *Engine) collaborators() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.token == nil:
		return errNilToken
	case e.certs == nil:
		return errNilCerts
	case e.resolver == nil:
		return errNilResolver
	}
	return nil
}

// OpenMarket creates an empty market with the declared side set. The market
// identifier is derived from the creator and label, so reusing a label is
// rejected rather than silently shadowing the previous market.
func (e *Engine) OpenMarket(creator [20]byte, label string, sides []string, deadline int64) (*Market, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	trimmedLabel := strings.TrimSpace(label)
	if trimmedLabel == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidParams)
	}
	normalized, err := SanitizeSides(sides)
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	if deadline <= now {
		return nil, fmt.Errorf("%w: deadline %d is not in the future", ErrInvalidParams, deadline)
	}
	id := NewMarketID(creator, trimmedLabel)
	if _, exists, err := e.loadMarket(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrMarketExists
	}
	m := newMarket(id, creator, trimmedLabel, normalized, deadline, now)
	if err := e.storeMarket(m); err != nil {
		return nil, err
	}
	if err := e.indexMarket(id); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(m))
	return m, nil
}

// MarketByID loads a market by identifier.
func (e *Engine) MarketByID(id [32]byte) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	m, ok, err := e.loadMarket(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMarketNotFound
	}
	return m, nil
}

// ensureOpen rejects bets against markets past their deadline or already
// decided by the oracle.
func (e *Engine) ensureOpen(m *Market, now int64) error {
	if now >= m.Deadline {
		return fmt.Errorf("%w: deadline passed", ErrMarketNotOpen)
	}
	if e.resolver.IsCancelled(m.ID) {
		return fmt.Errorf("%w: market cancelled", ErrMarketNotOpen)
	}
	resolved, err := e.resolver.HasWinningSide(m.ID)
	if err != nil {
		return err
	}
	if resolved {
		return fmt.Errorf("%w: market resolved", ErrMarketNotOpen)
	}
	return nil
}

// quoteFee splits the gross stake into fee and net via the attached collector.
// Without a collector the full stake reaches the ledger.
func (e *Engine) quoteFee(payer [20]byte, gross *big.Int) (*big.Int, *big.Int, error) {
	if e.fees == nil {
		return big.NewInt(0), new(big.Int).Set(gross), nil
	}
	return e.fees.Quote(payer, gross, fees.DomainPlace)
}

// PlaceBet accepts a wager on an open market. The gross stake is reduced by
// the placement fee; the remaining net stake is priced through the payout
// curve against the pool's current free liquidity, moved into the vault, and
// a certificate for the promised payout is minted to the caller.
//
// Validation is completed before any balance moves, so a rejected bet leaves
// no trace in state.
func (e *Engine) PlaceBet(caller [20]byte, marketID [32]byte, side string, stake, odds *big.Int) (*certs.Certificate, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	m, ok, err := e.loadMarket(marketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMarketNotFound
	}
	canonical, err := NormalizeSide(side)
	if err != nil {
		return nil, err
	}
	if !m.HasSide(canonical) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, canonical)
	}
	if stake == nil || stake.Sign() <= 0 {
		return nil, ErrInvalidStake
	}
	if err := e.ensureOpen(m, e.nowFn()); err != nil {
		return nil, err
	}
	balance, err := e.token.AccountBalance(caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(stake) < 0 {
		return nil, fmt.Errorf("%w: balance %s, stake %s", ErrInsufficientFunds, balance, stake)
	}

	_, net, err := e.quoteFee(caller, stake)
	if err != nil {
		return nil, err
	}
	pool, err := e.PoolSnapshot()
	if err != nil {
		return nil, err
	}
	free, err := pool.Free()
	if err != nil {
		return nil, err
	}
	payout, err := ComputePayout(net, odds, m.MaxPayout, m.SidePayout(canonical), free)
	if err != nil {
		return nil, err
	}

	m.SidePayouts[canonical] = new(big.Int).Add(m.SidePayouts[canonical], payout)
	m.TotalSize = new(big.Int).Add(m.TotalSize, net)
	if m.SidePayouts[canonical].Cmp(m.MaxPayout) > 0 {
		m.MaxPayout = new(big.Int).Set(m.SidePayouts[canonical])
	}
	oldReserve := m.Reserve
	newReserve := bigMax(m.TotalSize, m.MaxPayout)
	delta := new(big.Int).Sub(newReserve, oldReserve)
	if delta.Sign() < 0 {
		return nil, invariantf("market %x reserve shrank from %s to %s while open", m.ID, oldReserve, newReserve)
	}
	m.Reserve = newReserve

	// Commit phase. The reserved total rises and the records are written
	// before any funds move, so a failure partway through leaves the pool
	// over-reserved rather than the caller charged for a bet the ledger never
	// recorded. The caller affords the gross stake, so neither transfer below
	// can fail on balance.
	postBalance := new(big.Int).Add(pool.Balance, net)
	if err := e.raiseReserve(delta, postBalance); err != nil {
		return nil, err
	}
	cert, err := e.certs.Mint(caller, m.ID, canonical, net, payout)
	if err != nil {
		return nil, err
	}
	if err := e.storeMarket(m); err != nil {
		return nil, err
	}
	if e.fees != nil {
		collected, err := e.fees.Collect(caller, stake, fees.DomainPlace)
		if err != nil {
			return nil, err
		}
		if collected.Cmp(net) != 0 {
			return nil, invariantf("fee collection netted %s, quote promised %s", collected, net)
		}
	}
	if err := e.token.TransferIn(caller, net); err != nil {
		return nil, err
	}
	e.emit(NewBetPlacedEvent(m, cert.ID, canonical, net, payout))
	return cert, nil
}

// PreviewPayout prices a hypothetical bet without touching state. It applies
// the same fee split and curve as PlaceBet, so the returned payout is exactly
// what an immediately placed bet would be promised.
func (e *Engine) PreviewPayout(caller [20]byte, marketID [32]byte, side string, stake, odds *big.Int) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	m, ok, err := e.loadMarket(marketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMarketNotFound
	}
	canonical, err := NormalizeSide(side)
	if err != nil {
		return nil, err
	}
	if !m.HasSide(canonical) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, canonical)
	}
	if stake == nil || stake.Sign() <= 0 {
		return nil, ErrInvalidStake
	}
	if err := e.ensureOpen(m, e.nowFn()); err != nil {
		return nil, err
	}
	_, net, err := e.quoteFee(caller, stake)
	if err != nil {
		return nil, err
	}
	pool, err := e.PoolSnapshot()
	if err != nil {
		return nil, err
	}
	free, err := pool.Free()
	if err != nil {
		return nil, err
	}
	return ComputePayout(net, odds, m.MaxPayout, m.SidePayout(canonical), free)
}

// loadCertificate resolves a bet identifier to its live certificate,
// distinguishing already-settled bets from unknown ones.
func (e *Engine) loadCertificate(betID [32]byte) (*certs.Certificate, error) {
	cert, ok, err := e.certs.Get(betID)
	if err != nil {
		return nil, err
	}
	if ok {
		return cert, nil
	}
	settled, err := e.certs.Settled(betID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, ErrAlreadySettled
	}
	return nil, ErrBetNotFound
}

// collapseReserve performs the one-time in-memory shrink of a decided
// market's reserve from the open-phase worst case to the true remaining
// obligation: the winning side's cumulative payout, or the total stake when
// cancelled. It returns the freed difference; settle persists it together
// with the settlement itself. Repeat calls release nothing.
func (e *Engine) collapseReserve(m *Market, winner string, cancelled bool) (*big.Int, error) {
	if m.Collapsed {
		return big.NewInt(0), nil
	}
	var obligation *big.Int
	if cancelled {
		obligation = cloneBigInt(m.TotalSize)
	} else {
		obligation = m.SidePayout(winner)
		if obligation == nil {
			return nil, invariantf("market %x resolved to unknown side %q", m.ID, winner)
		}
	}
	released := new(big.Int).Sub(m.Reserve, obligation)
	if released.Sign() < 0 {
		return nil, invariantf("market %x reserve %s below obligation %s at collapse", m.ID, m.Reserve, obligation)
	}
	m.Reserve = obligation
	m.Collapsed = true
	return released, nil
}

// settle commits a settlement: the market reserve shrinks by the amount paid
// and the pool-wide reserved total by that amount plus any freed collapse
// surplus. The certificate burn and the market record are persisted before
// the reserved total shrinks or any funds move, so a failure partway through
// leaves the pool over-reserved and the settlement incomplete, but a retry
// can never pay the same certificate twice.
func (e *Engine) settle(m *Market, cert *certs.Certificate, amount, released *big.Int) error {
	remaining := new(big.Int).Sub(m.Reserve, amount)
	if remaining.Sign() < 0 {
		return invariantf("market %x settlement %s exceeds reserve %s", m.ID, amount, m.Reserve)
	}
	m.Reserve = remaining
	if err := e.certs.Burn(cert.ID); err != nil {
		return err
	}
	if err := e.storeMarket(m); err != nil {
		return err
	}
	if err := e.releaseReserve(new(big.Int).Add(released, amount)); err != nil {
		return err
	}
	return e.token.TransferOut(cert.Owner, amount)
}

// Claim settles a winning bet: the certificate's promised payout moves from
// the vault to the owner and the certificate is burned. The first claim after
// resolution collapses the market's reserve.
func (e *Engine) Claim(caller [20]byte, betID [32]byte) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	cert, err := e.loadCertificate(betID)
	if err != nil {
		return nil, err
	}
	if cert.Owner != caller {
		return nil, ErrNotBetOwner
	}
	m, ok, err := e.loadMarket(cert.MarketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invariantf("certificate %x references missing market %x", betID, cert.MarketID)
	}
	resolved, err := e.resolver.HasWinningSide(m.ID)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, ErrMarketNotResolved
	}
	winner, err := e.resolver.WinningSide(m.ID)
	if err != nil {
		return nil, err
	}
	if cert.Side != winner {
		return nil, ErrNotWinningSide
	}
	collapsing := !m.Collapsed
	released, err := e.collapseReserve(m, winner, false)
	if err != nil {
		return nil, err
	}
	payout := cloneBigInt(cert.Payout)
	if err := e.settle(m, cert, payout, released); err != nil {
		return nil, err
	}
	if collapsing {
		e.emit(NewReserveCollapsedEvent(m, released))
	}
	e.emit(NewBetClaimedEvent(m.ID, cert.ID, cert.Owner, payout))
	return payout, nil
}

// Withdraw refunds a bet's stake after the market was cancelled. Payout
// promises on cancelled markets are void; only the stake comes back.
func (e *Engine) Withdraw(caller [20]byte, betID [32]byte) (*big.Int, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	cert, err := e.loadCertificate(betID)
	if err != nil {
		return nil, err
	}
	if cert.Owner != caller {
		return nil, ErrNotBetOwner
	}
	m, ok, err := e.loadMarket(cert.MarketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invariantf("certificate %x references missing market %x", betID, cert.MarketID)
	}
	if !e.resolver.IsCancelled(m.ID) {
		return nil, ErrMarketNotCancelled
	}
	collapsing := !m.Collapsed
	released, err := e.collapseReserve(m, "", true)
	if err != nil {
		return nil, err
	}
	stake := cloneBigInt(cert.Stake)
	if err := e.settle(m, cert, stake, released); err != nil {
		return nil, err
	}
	if collapsing {
		e.emit(NewReserveCollapsedEvent(m, released))
	}
	e.emit(NewBetWithdrawnEvent(m.ID, cert.ID, cert.Owner, stake))
	return stake, nil
}

func bigMax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}
