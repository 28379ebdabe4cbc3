// Package certs issues and tracks bet certificates: transferable records of
// a placed bet. The market engine consults the registry for ownership and
// burns a certificate exactly once when the bet settles.
package certs

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	errNilStore = errors.New("certs registry: state not configured")

	// ErrNotFound is returned when no live certificate exists for an ID.
	ErrNotFound = errors.New("certs: certificate not found")
	// ErrNotOwner is returned when a transfer is attempted by a non-owner.
	ErrNotOwner = errors.New("certs: caller does not own certificate")
)

// Certificate is the immutable record minted for a placed bet. Ownership is
// the only mutable attribute; everything else is fixed at mint time.
type Certificate struct {
	ID       [32]byte
	MarketID [32]byte
	Side     string
	Stake    *big.Int
	Payout   *big.Int
	Owner    [20]byte
	MintedAt int64
}

// Clone returns a deep copy so callers can mutate the result freely.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Stake != nil {
		clone.Stake = new(big.Int).Set(c.Stake)
	} else {
		clone.Stake = big.NewInt(0)
	}
	if c.Payout != nil {
		clone.Payout = new(big.Int).Set(c.Payout)
	} else {
		clone.Payout = big.NewInt(0)
	}
	return &clone
}

// Storage abstracts the subset of state-manager functionality the registry
// needs.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

var (
	certRecordPrefix    = []byte("certs/record/")
	certTombstonePrefix = []byte("certs/settled/")
	certNonceKey        = []byte("certs/nonce")
)

func certRecordKey(id [32]byte) []byte {
	buf := make([]byte, len(certRecordPrefix)+len(id))
	copy(buf, certRecordPrefix)
	copy(buf[len(certRecordPrefix):], id[:])
	return buf
}

func certTombstoneKey(id [32]byte) []byte {
	buf := make([]byte, len(certTombstonePrefix)+len(id))
	copy(buf, certTombstonePrefix)
	copy(buf[len(certTombstonePrefix):], id[:])
	return buf
}

type storedCertificate struct {
	MarketID [32]byte
	Side     string
	Stake    *big.Int
	Payout   *big.Int
	Owner    [20]byte
	MintedAt uint64
}

// Registry persists certificates in the underlying key-value state.
type Registry struct {
	store Storage
	nowFn func() int64
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) nextNonce() (uint64, error) {
	var nonce uint64
	if _, err := r.store.KVGet(certNonceKey, &nonce); err != nil {
		return 0, err
	}
	nonce++
	if err := r.store.KVPut(certNonceKey, nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Mint issues a certificate for a freshly placed bet. The identifier is the
// keccak256 hash of the market, owner and a registry-issued nonce, so IDs are
// deterministic per state history and never collide.
func (r *Registry) Mint(owner [20]byte, marketID [32]byte, side string, stake, payout *big.Int) (*Certificate, error) {
	if r == nil || r.store == nil {
		return nil, errNilStore
	}
	trimmedSide := strings.TrimSpace(side)
	if trimmedSide == "" {
		return nil, fmt.Errorf("certs: empty side key")
	}
	if stake == nil || stake.Sign() < 0 {
		return nil, fmt.Errorf("certs: stake must be non-negative")
	}
	if payout == nil || payout.Sign() < 0 {
		return nil, fmt.Errorf("certs: payout must be non-negative")
	}
	nonce, err := r.nextNonce()
	if err != nil {
		return nil, err
	}
	var nonceBytes [8]byte
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	id := ethcrypto.Keccak256Hash(marketID[:], owner[:], nonceBytes[:])
	cert := &Certificate{
		ID:       id,
		MarketID: marketID,
		Side:     trimmedSide,
		Stake:    new(big.Int).Set(stake),
		Payout:   new(big.Int).Set(payout),
		Owner:    owner,
		MintedAt: r.nowFn(),
	}
	if err := r.put(cert); err != nil {
		return nil, err
	}
	return cert.Clone(), nil
}

func (r *Registry) put(cert *Certificate) error {
	stored := &storedCertificate{
		MarketID: cert.MarketID,
		Side:     cert.Side,
		Stake:    cert.Stake,
		Payout:   cert.Payout,
		Owner:    cert.Owner,
		MintedAt: uint64(cert.MintedAt),
	}
	return r.store.KVPut(certRecordKey(cert.ID), stored)
}

// Get loads the live certificate for id. The boolean reports existence; a
// settled certificate no longer exists.
func (r *Registry) Get(id [32]byte) (*Certificate, bool, error) {
	if r == nil || r.store == nil {
		return nil, false, errNilStore
	}
	var stored storedCertificate
	ok, err := r.store.KVGet(certRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Certificate{
		ID:       id,
		MarketID: stored.MarketID,
		Side:     stored.Side,
		Stake:    stored.Stake,
		Payout:   stored.Payout,
		Owner:    stored.Owner,
		MintedAt: int64(stored.MintedAt),
	}, true, nil
}

// OwnerOf reports the current owner of the certificate.
func (r *Registry) OwnerOf(id [32]byte) ([20]byte, bool, error) {
	cert, ok, err := r.Get(id)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return cert.Owner, true, nil
}

// Transfer reassigns ownership of a live certificate.
func (r *Registry) Transfer(from, to [20]byte, id [32]byte) error {
	cert, ok, err := r.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if cert.Owner != from {
		return ErrNotOwner
	}
	cert.Owner = to
	return r.put(cert)
}

// Burn destroys a certificate after settlement, leaving a tombstone so later
// settlement attempts are distinguishable from unknown IDs.
func (r *Registry) Burn(id [32]byte) error {
	if r == nil || r.store == nil {
		return errNilStore
	}
	ok, err := r.store.KVHas(certRecordKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := r.store.KVPut(certTombstoneKey(id), true); err != nil {
		return err
	}
	return r.store.KVDelete(certRecordKey(id))
}

// Settled reports whether id belonged to a certificate that has since been
// burned.
func (r *Registry) Settled(id [32]byte) (bool, error) {
	if r == nil || r.store == nil {
		return false, errNilStore
	}
	return r.store.KVHas(certTombstoneKey(id))
}
