package state

import (
	"errors"
	"math/big"
	"testing"

	"betpool/core/types"
	"betpool/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestAccountDefaultsToZero(t *testing.T) {
	m := newTestManager()
	acc, err := m.GetAccount(addr(0x01))
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance.Sign() != 0 || acc.Nonce != 0 {
		t.Fatalf("expected zero account, got %+v", acc)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager()
	a := addr(0x02)
	if err := m.PutAccount(a, &types.Account{Nonce: 42, Balance: big.NewInt(1_000)}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	acc, err := m.GetAccount(a)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Nonce != 42 || acc.Balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("round trip mismatch: %+v", acc)
	}
}

func TestTransfer(t *testing.T) {
	m := newTestManager()
	from, to := addr(0x03), addr(0x04)
	if err := m.Mint(from, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Transfer(from, to, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromAcc, _ := m.GetAccount(from)
	toAcc, _ := m.GetAccount(to)
	if fromAcc.Balance.Cmp(big.NewInt(40)) != 0 || toAcc.Balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balances after transfer: from=%s to=%s", fromAcc.Balance, toAcc.Balance)
	}
}

func TestTransferInsufficient(t *testing.T) {
	m := newTestManager()
	from, to := addr(0x05), addr(0x06)
	if err := m.Mint(from, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := m.Transfer(from, to, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	fromAcc, _ := m.GetAccount(from)
	if fromAcc.Balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer mutated sender balance: %s", fromAcc.Balance)
	}
}

func TestRoles(t *testing.T) {
	m := newTestManager()
	a := addr(0x07)
	if m.HasRole(RoleAdmin, a) {
		t.Fatal("role present before grant")
	}
	if err := m.GrantRole(RoleAdmin, a); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := m.GrantRole(RoleAdmin, a); err != nil {
		t.Fatalf("idempotent grant: %v", err)
	}
	if !m.HasRole(RoleAdmin, a) {
		t.Fatal("role missing after grant")
	}
	if err := m.RevokeRole(RoleAdmin, a); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if m.HasRole(RoleAdmin, a) {
		t.Fatal("role present after revoke")
	}
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager()
	type payload struct {
		Name  string
		Count uint64
	}
	if err := m.KVPut([]byte("test/payload"), &payload{Name: "x", Count: 7}); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	var out payload
	ok, err := m.KVGet([]byte("test/payload"), &out)
	if err != nil || !ok {
		t.Fatalf("kv get: ok=%v err=%v", ok, err)
	}
	if out.Name != "x" || out.Count != 7 {
		t.Fatalf("kv round trip mismatch: %+v", out)
	}
	if err := m.KVDelete([]byte("test/payload")); err != nil {
		t.Fatalf("kv delete: %v", err)
	}
	ok, err = m.KVGet([]byte("test/payload"), &out)
	if err != nil || ok {
		t.Fatalf("kv get after delete: ok=%v err=%v", ok, err)
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	m := newTestManager()
	key := []byte("test/index")
	for i := 0; i < 2; i++ {
		if err := m.KVAppend(key, []byte("a")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := m.KVAppend(key, []byte("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	list, err := m.KVGetList(key)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "a" || string(list[1]) != "b" {
		t.Fatalf("unexpected list: %q", list)
	}
}

func TestPoolLedger(t *testing.T) {
	m := newTestManager()
	vault, bettor := addr(0xAA), addr(0x08)
	if err := m.SetPoolVault(vault); err != nil {
		t.Fatalf("set vault: %v", err)
	}
	if err := m.Mint(bettor, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ledger := m.PoolLedger()
	if err := ledger.TransferIn(bettor, big.NewInt(200)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	balance, err := ledger.BalanceOf()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("vault balance: %s", balance)
	}
	if err := ledger.TransferOut(bettor, big.NewInt(50)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	balance, _ = ledger.BalanceOf()
	if balance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("vault balance after payout: %s", balance)
	}
}

func TestPoolReserved(t *testing.T) {
	m := newTestManager()
	reserved, err := m.PoolReserved()
	if err != nil || reserved.Sign() != 0 {
		t.Fatalf("initial reserved: %s err=%v", reserved, err)
	}
	if err := m.SetPoolReserved(big.NewInt(75)); err != nil {
		t.Fatalf("set reserved: %v", err)
	}
	reserved, err = m.PoolReserved()
	if err != nil || reserved.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("reserved after set: %s err=%v", reserved, err)
	}
	if err := m.SetPoolReserved(big.NewInt(-1)); err == nil {
		t.Fatal("negative reserved must be rejected")
	}
}

func TestPoolVaultUnset(t *testing.T) {
	m := newTestManager()
	if _, err := m.PoolVault(); !errors.Is(err, ErrPoolVaultUnset) {
		t.Fatalf("expected ErrPoolVaultUnset, got %v", err)
	}
}
