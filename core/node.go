// Package core wires the state manager and the native engines into a single
// Node. The node serialises all state-mutating operations behind one mutex:
// the ledger's correctness argument assumes strictly sequential execution,
// and a single lock keeps that property trivially auditable.
package core

import (
	"math/big"
	"sync"

	"betpool/core/events"
	"betpool/core/genesis"
	"betpool/core/state"
	"betpool/native/certs"
	"betpool/native/fees"
	"betpool/native/fixedpoint"
	"betpool/native/market"
	"betpool/native/oracle"
	"betpool/observability"
	"betpool/storage"
)

var genesisAppliedKey = []byte("genesis/applied")

// meteredEmitter counts emissions before fanning them out to subscribers.
type meteredEmitter struct {
	bus *events.Bus
}

func (e meteredEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
	e.bus.Emit(evt)
}

// Node owns the ledger state and its engines.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *state.Manager
	markets *market.Engine
	oracle  *oracle.Engine
	certs   *certs.Registry
	fees    *fees.Engine
	bus     *events.Bus
}

// NewNode assembles a node over the provided database and applies the
// genesis document on first boot.
func NewNode(db storage.Database, spec *genesis.Spec) (*Node, error) {
	manager := state.NewManager(db)
	bus := events.NewBus()
	emitter := meteredEmitter{bus: bus}

	registry := certs.NewRegistry(manager)
	oracleEngine := oracle.NewEngine(manager, manager)
	oracleEngine.SetEmitter(emitter)
	feeEngine := fees.NewEngine(manager, manager)
	marketEngine := market.NewEngine(manager, manager.PoolLedger(), registry, oracleEngine)
	marketEngine.SetEmitter(emitter)
	marketEngine.SetFeeCollector(feeEngine)

	n := &Node{
		db:      db,
		state:   manager,
		markets: marketEngine,
		oracle:  oracleEngine,
		certs:   registry,
		fees:    feeEngine,
		bus:     bus,
	}

	if spec != nil {
		applied, err := manager.KVHas(genesisAppliedKey)
		if err != nil {
			return nil, err
		}
		if !applied {
			if err := spec.Apply(manager, feeEngine); err != nil {
				return nil, err
			}
			if err := manager.KVPut(genesisAppliedKey, true); err != nil {
				return nil, err
			}
		}
	}
	n.publishPoolMetrics()
	return n, nil
}

// Events exposes the fan-out bus for RPC streams and the indexer.
func (n *Node) Events() *events.Bus { return n.bus }

// State exposes the state manager for read-only admin surfaces.
func (n *Node) State() *state.Manager { return n.state }

// OpenMarket creates a market and registers its side set with the oracle in
// one serialised step.
func (n *Node) OpenMarket(creator [20]byte, label string, sides []string, deadline int64) (*market.Market, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, err := n.markets.OpenMarket(creator, label, sides, deadline)
	if err != nil {
		return nil, err
	}
	if err := n.oracle.RegisterMarket(m.ID, m.Sides); err != nil {
		return nil, err
	}
	observability.Exchange().RecordMarketOpened()
	return m, nil
}

// PlaceBet verifies the odds attestation and submits the wager. The proof
// check happens first so an invalid quote never reaches the pricing curve.
func (n *Node) PlaceBet(caller [20]byte, marketID [32]byte, side string, stake, odds *big.Int, proof *oracle.OddsProof) (*certs.Certificate, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := oracle.VerifyOddsProof(proof, marketID, side, odds, n.markets.Now(), n.state); err != nil {
		return nil, err
	}
	cert, err := n.markets.PlaceBet(caller, marketID, side, stake, odds)
	if err != nil {
		return nil, err
	}
	regime := "linear"
	if cert.Payout.Cmp(fixedpoint.Mul(cert.Stake, odds)) < 0 {
		regime = "squashed"
	}
	observability.Exchange().RecordBet(regime)
	n.publishPoolMetrics()
	return cert, nil
}

// PreviewPayout prices a hypothetical bet. No proof is required since nothing
// is committed.
func (n *Node) PreviewPayout(caller [20]byte, marketID [32]byte, side string, stake, odds *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.markets.PreviewPayout(caller, marketID, side, stake, odds)
}

// Claim settles a winning bet.
func (n *Node) Claim(caller [20]byte, betID [32]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	payout, err := n.markets.Claim(caller, betID)
	if err != nil {
		return nil, err
	}
	observability.Exchange().RecordSettlement("claim")
	n.publishPoolMetrics()
	return payout, nil
}

// Withdraw refunds a bet on a cancelled market.
func (n *Node) Withdraw(caller [20]byte, betID [32]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	stake, err := n.markets.Withdraw(caller, betID)
	if err != nil {
		return nil, err
	}
	observability.Exchange().RecordSettlement("withdraw")
	n.publishPoolMetrics()
	return stake, nil
}

// ResolveMarket records the winning side through the oracle.
func (n *Node) ResolveMarket(caller [20]byte, marketID [32]byte, winner string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.Resolve(caller, marketID, winner)
}

// CancelMarket voids a market through the oracle.
func (n *Node) CancelMarket(caller [20]byte, marketID [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.Cancel(caller, marketID)
}

// TransferCertificate reassigns bet ownership.
func (n *Node) TransferCertificate(from, to [20]byte, betID [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.certs.Transfer(from, to, betID)
}

// Market loads a market by ID.
func (n *Node) Market(id [32]byte) (*market.Market, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.markets.MarketByID(id)
}

// Markets lists every known market identifier.
func (n *Node) Markets() ([][32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.markets.ListMarkets()
}

// Certificate loads a live certificate by ID.
func (n *Node) Certificate(id [32]byte) (*certs.Certificate, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.certs.Get(id)
}

// Pool reports the pool's balance and reserved totals.
func (n *Node) Pool() (*market.Pool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.markets.PoolSnapshot()
}

// Balance reports an account's spendable balance.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// FeePolicy returns the active fee schedule.
func (n *Node) FeePolicy() (fees.Policy, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fees.Policy()
}

// SetFeePolicy replaces the fee schedule. Admin role required.
func (n *Node) SetFeePolicy(caller [20]byte, policy fees.Policy) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.state.HasRole(state.RoleAdmin, caller) {
		return state.ErrUnauthorized
	}
	return n.fees.SetPolicy(policy)
}

// SetNowFunc overrides the time source on every engine, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.markets.SetNowFunc(now)
	n.oracle.SetNowFunc(now)
	n.certs.SetNowFunc(now)
}

func (n *Node) publishPoolMetrics() {
	pool, err := n.markets.PoolSnapshot()
	if err != nil {
		return
	}
	observability.Exchange().SetPoolPosition(pool.Balance, pool.Reserved)
}
