package genesis

import (
	"testing"

	"betpool/core/state"
	"betpool/crypto"
	"betpool/native/fees"
	"betpool/native/fixedpoint"
	"betpool/native/oracle"
	"betpool/storage"
)

func bech(t *testing.T, b byte) string {
	t.Helper()
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.MustAddress(raw[:]).String()
}

func validSpec(t *testing.T) *Spec {
	t.Helper()
	return &Spec{
		ChainName: "betpool-local",
		PoolVault: bech(t, 0xAA),
		Accounts: []AccountSpec{
			{Address: bech(t, 0xAA), Balance: "1000"},
			{Address: bech(t, 0x01), Balance: "25.5"},
		},
		Roles: []RoleSpec{
			{Role: oracle.RoleResolver, Addresses: []string{bech(t, 0xBB)}},
		},
		FeePolicy: &FeePolicySpec{
			Version: 1,
			Domains: []FeeDomainSpec{
				{Domain: fees.DomainPlace, FeeBps: 100, RouteWallet: bech(t, 0xCC)},
			},
		},
	}
}

func TestApply(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	feeEngine := fees.NewEngine(manager, manager)
	spec := validSpec(t)

	if err := spec.Apply(manager, feeEngine); err != nil {
		t.Fatalf("apply: %v", err)
	}

	vault, err := manager.PoolVault()
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	var wantVault [20]byte
	for i := range wantVault {
		wantVault[i] = 0xAA
	}
	if vault != wantVault {
		t.Fatal("vault address mismatch")
	}

	acc, err := manager.GetAccount(wantVault)
	if err != nil {
		t.Fatalf("vault account: %v", err)
	}
	want, _ := fixedpoint.Parse("1000")
	if acc.Balance.Cmp(want) != 0 {
		t.Fatalf("vault balance: got %s", acc.Balance)
	}

	var resolver [20]byte
	for i := range resolver {
		resolver[i] = 0xBB
	}
	if !manager.HasRole(oracle.RoleResolver, resolver) {
		t.Fatal("resolver role not granted")
	}

	policy, err := feeEngine.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	cfg, ok := policy.DomainConfig(fees.DomainPlace)
	if !ok || cfg.FeeBps != 100 {
		t.Fatalf("fee policy not applied: %+v", cfg)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"missing vault", func(s *Spec) { s.PoolVault = "" }},
		{"bad vault", func(s *Spec) { s.PoolVault = "bp1invalid" }},
		{"bad account address", func(s *Spec) { s.Accounts[0].Address = "nope" }},
		{"bad balance", func(s *Spec) { s.Accounts[0].Balance = "abc" }},
		{"negative balance", func(s *Spec) { s.Accounts[0].Balance = "-1" }},
		{"unnamed role", func(s *Spec) { s.Roles[0].Role = "  " }},
		{"fee over 100 percent", func(s *Spec) { s.FeePolicy.Domains[0].FeeBps = 10_001 }},
		{"fee without route", func(s *Spec) { s.FeePolicy.Domains[0].RouteWallet = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec(t)
			tc.mutate(spec)
			if err := spec.Validate(); err == nil {
				t.Fatal("validation must fail")
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
chainName: betpool-local
poolVault: ` + bech(t, 0xAA) + `
accounts:
  - address: ` + bech(t, 0x01) + `
    balance: "100"
roles:
  - role: ROLE_ORACLE
    addresses: [` + bech(t, 0xBB) + `]
`)
	spec, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.ChainName != "betpool-local" || len(spec.Accounts) != 1 || len(spec.Roles) != 1 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}
