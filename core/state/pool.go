package state

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	poolVaultKey    = []byte("pool/vault")
	poolReservedKey = []byte("pool/reserved")
)

// ErrPoolVaultUnset is returned when pool operations run before genesis
// configured a vault address.
var ErrPoolVaultUnset = errors.New("state: pool vault not configured")

// SetPoolVault records the address holding the shared liquidity pool.
func (m *Manager) SetPoolVault(addr [20]byte) error {
	if addr == ([20]byte{}) {
		return fmt.Errorf("state: pool vault must not be the zero address")
	}
	return m.KVPut(poolVaultKey, addr[:])
}

// PoolVault returns the configured pool vault address.
func (m *Manager) PoolVault() ([20]byte, error) {
	var raw []byte
	ok, err := m.KVGet(poolVaultKey, &raw)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok || len(raw) != 20 {
		return [20]byte{}, ErrPoolVaultUnset
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, nil
}

// PoolReserved returns the pool-wide reserved collateral total.
func (m *Manager) PoolReserved() (*big.Int, error) {
	var stored *big.Int
	ok, err := m.KVGet(poolReservedKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored == nil {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetPoolReserved overwrites the pool-wide reserved collateral total.
func (m *Manager) SetPoolReserved(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("state: reserved amount must be non-negative")
	}
	return m.KVPut(poolReservedKey, v)
}

// PoolLedger adapts the state manager to the token-ledger surface the market
// engine consumes: collateral moves between bettor accounts and the vault,
// and the pool balance is always the vault account's balance.
type PoolLedger struct {
	manager *Manager
}

// PoolLedger returns the token-ledger view bound to this manager.
func (m *Manager) PoolLedger() *PoolLedger {
	return &PoolLedger{manager: m}
}

// TransferIn moves amount from the payer into the pool vault.
func (p *PoolLedger) TransferIn(from [20]byte, amount *big.Int) error {
	vault, err := p.manager.PoolVault()
	if err != nil {
		return err
	}
	return p.manager.Transfer(from, vault, amount)
}

// TransferOut moves amount from the pool vault to the recipient.
func (p *PoolLedger) TransferOut(to [20]byte, amount *big.Int) error {
	vault, err := p.manager.PoolVault()
	if err != nil {
		return err
	}
	return p.manager.Transfer(vault, to, amount)
}

// AccountBalance reports the spendable balance of an arbitrary account.
func (p *PoolLedger) AccountBalance(addr [20]byte) (*big.Int, error) {
	acc, err := p.manager.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// BalanceOf reports the pool vault balance.
func (p *PoolLedger) BalanceOf() (*big.Int, error) {
	vault, err := p.manager.PoolVault()
	if err != nil {
		return nil, err
	}
	acc, err := p.manager.GetAccount(vault)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}
