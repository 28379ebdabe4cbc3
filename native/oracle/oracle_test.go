package oracle

import (
	"errors"
	"testing"

	"betpool/core/state"
	"betpool/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func newEngine(t *testing.T) (*Engine, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	resolver := addr(0xBB)
	if err := manager.GrantRole(RoleResolver, resolver); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	engine := NewEngine(manager, manager)
	engine.SetNowFunc(func() int64 { return 1_000 })
	return engine, resolver
}

func TestRegisterMarket(t *testing.T) {
	engine, _ := newEngine(t)
	id := [32]byte{0x01}

	if err := engine.RegisterMarket(id, []string{"Yes", " no "}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !engine.MarketExists(id) {
		t.Fatal("registered market must exist")
	}
	if !engine.SideExists(id, "YES") || !engine.SideExists(id, "no") {
		t.Fatal("sides must match case-insensitively")
	}
	if engine.SideExists(id, "maybe") {
		t.Fatal("unknown side must not exist")
	}

	// Re-registering the same side set is a no-op; a different set is not.
	if err := engine.RegisterMarket(id, []string{"yes", "no"}); err != nil {
		t.Fatalf("idempotent register: %v", err)
	}
	if err := engine.RegisterMarket(id, []string{"yes", "no", "draw"}); err == nil {
		t.Fatal("conflicting registration must fail")
	}
	if err := engine.RegisterMarket([32]byte{0x02}, []string{"yes"}); err == nil {
		t.Fatal("single-sided registration must fail")
	}
}

func TestResolve(t *testing.T) {
	engine, resolver := newEngine(t)
	id := [32]byte{0x01}
	if err := engine.RegisterMarket(id, []string{"yes", "no"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := engine.Resolve(addr(0x99), id, "yes"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized resolve: got %v", err)
	}
	if err := engine.Resolve(resolver, [32]byte{0xFF}, "yes"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("unknown market: got %v", err)
	}
	if err := engine.Resolve(resolver, id, "draw"); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("unknown side: got %v", err)
	}

	if err := engine.Resolve(resolver, id, " YES "); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resolved, err := engine.HasWinningSide(id)
	if err != nil || !resolved {
		t.Fatalf("has winning side: %v %v", resolved, err)
	}
	winner, err := engine.WinningSide(id)
	if err != nil || winner != "yes" {
		t.Fatalf("winning side: %q %v", winner, err)
	}
	if engine.IsCancelled(id) {
		t.Fatal("resolved market is not cancelled")
	}

	// Outcomes are write-once, in either direction.
	if err := engine.Resolve(resolver, id, "no"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("double resolve: got %v", err)
	}
	if err := engine.Cancel(resolver, id); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("cancel after resolve: got %v", err)
	}
}

func TestCancel(t *testing.T) {
	engine, resolver := newEngine(t)
	id := [32]byte{0x01}
	if err := engine.RegisterMarket(id, []string{"yes", "no"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := engine.Cancel(addr(0x99), id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized cancel: got %v", err)
	}
	if err := engine.Cancel(resolver, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !engine.IsCancelled(id) {
		t.Fatal("market must read as cancelled")
	}
	// A cancelled market has no winning side.
	resolved, err := engine.HasWinningSide(id)
	if err != nil || resolved {
		t.Fatalf("cancelled market has no winner: %v %v", resolved, err)
	}
	if _, err := engine.WinningSide(id); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("winning side of cancelled: got %v", err)
	}
	if err := engine.Resolve(resolver, id, "yes"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("resolve after cancel: got %v", err)
	}
}

func TestUnresolvedMarket(t *testing.T) {
	engine, _ := newEngine(t)
	id := [32]byte{0x01}
	if err := engine.RegisterMarket(id, []string{"yes", "no"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resolved, err := engine.HasWinningSide(id)
	if err != nil || resolved {
		t.Fatalf("fresh market must be unresolved: %v %v", resolved, err)
	}
	if _, err := engine.WinningSide(id); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("winning side of unresolved: got %v", err)
	}
	if engine.IsCancelled(id) {
		t.Fatal("fresh market is not cancelled")
	}
}
