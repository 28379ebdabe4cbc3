// Package genesis loads and applies the initial ledger state: the pool
// vault, seeded balances, role grants, and the fee policy.
package genesis

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"betpool/core/state"
	"betpool/crypto"
	"betpool/native/fees"
	"betpool/native/fixedpoint"
)

// AccountSpec seeds one account balance. Balances are decimal strings in
// collateral units, e.g. "1000" or "12.5".
type AccountSpec struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// RoleSpec grants a role to a list of addresses.
type RoleSpec struct {
	Role      string   `yaml:"role"`
	Addresses []string `yaml:"addresses"`
}

// FeeDomainSpec configures one fee domain.
type FeeDomainSpec struct {
	Domain            string `yaml:"domain"`
	FreeTierAllowance uint64 `yaml:"freeTierAllowance"`
	FeeBps            uint32 `yaml:"feeBps"`
	RouteWallet       string `yaml:"routeWallet"`
}

// FeePolicySpec is the genesis fee schedule.
type FeePolicySpec struct {
	Version uint64          `yaml:"version"`
	Domains []FeeDomainSpec `yaml:"domains"`
}

// Spec is the full genesis document.
type Spec struct {
	ChainName string         `yaml:"chainName"`
	PoolVault string         `yaml:"poolVault"`
	Accounts  []AccountSpec  `yaml:"accounts"`
	Roles     []RoleSpec     `yaml:"roles"`
	FeePolicy *FeePolicySpec `yaml:"feePolicy"`
}

// Load reads and validates a genesis document from disk.
func Load(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a genesis document.
func Parse(raw []byte) (*Spec, error) {
	spec := &Spec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("genesis: decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks the document for structural problems before any of it is
// applied.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis: empty document")
	}
	if strings.TrimSpace(s.PoolVault) == "" {
		return fmt.Errorf("genesis: poolVault is required")
	}
	if _, err := crypto.DecodeAddress(s.PoolVault); err != nil {
		return fmt.Errorf("genesis: poolVault: %w", err)
	}
	for i, acct := range s.Accounts {
		if _, err := crypto.DecodeAddress(acct.Address); err != nil {
			return fmt.Errorf("genesis: account %d: %w", i, err)
		}
		amount, err := fixedpoint.Parse(acct.Balance)
		if err != nil {
			return fmt.Errorf("genesis: account %d balance: %w", i, err)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("genesis: account %d balance must be non-negative", i)
		}
	}
	for i, grant := range s.Roles {
		if strings.TrimSpace(grant.Role) == "" {
			return fmt.Errorf("genesis: role grant %d missing role name", i)
		}
		for _, a := range grant.Addresses {
			if _, err := crypto.DecodeAddress(a); err != nil {
				return fmt.Errorf("genesis: role %s: %w", grant.Role, err)
			}
		}
	}
	if s.FeePolicy != nil {
		for i, domain := range s.FeePolicy.Domains {
			if strings.TrimSpace(domain.Domain) == "" {
				return fmt.Errorf("genesis: fee domain %d missing name", i)
			}
			if domain.FeeBps > 10_000 {
				return fmt.Errorf("genesis: fee domain %s exceeds 100%%", domain.Domain)
			}
			if domain.FeeBps > 0 {
				if _, err := crypto.DecodeAddress(domain.RouteWallet); err != nil {
					return fmt.Errorf("genesis: fee domain %s route wallet: %w", domain.Domain, err)
				}
			}
		}
	}
	return nil
}

// Apply writes the genesis state through the manager. It is idempotent only
// on an empty database; callers guard it with a persisted marker.
func (s *Spec) Apply(manager *state.Manager, feeEngine *fees.Engine) error {
	if err := s.Validate(); err != nil {
		return err
	}
	vault, err := crypto.DecodeAddress(s.PoolVault)
	if err != nil {
		return err
	}
	if err := manager.SetPoolVault(vault.Raw()); err != nil {
		return err
	}

	// Deterministic order regardless of document order.
	accounts := append([]AccountSpec(nil), s.Accounts...)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })
	for _, acct := range accounts {
		addr, err := crypto.DecodeAddress(acct.Address)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.Parse(acct.Balance)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			continue
		}
		if err := manager.Mint(addr.Raw(), amount); err != nil {
			return fmt.Errorf("genesis: seed %s: %w", acct.Address, err)
		}
	}

	for _, grant := range s.Roles {
		role := strings.TrimSpace(grant.Role)
		for _, a := range grant.Addresses {
			addr, err := crypto.DecodeAddress(a)
			if err != nil {
				return err
			}
			if err := manager.GrantRole(role, addr.Raw()); err != nil {
				return fmt.Errorf("genesis: grant %s: %w", role, err)
			}
		}
	}

	if s.FeePolicy != nil && feeEngine != nil {
		policy := fees.Policy{
			Version: s.FeePolicy.Version,
			Domains: make(map[string]fees.DomainPolicy, len(s.FeePolicy.Domains)),
		}
		for _, domain := range s.FeePolicy.Domains {
			cfg := fees.DomainPolicy{
				FreeTierAllowance: domain.FreeTierAllowance,
				FeeBps:            domain.FeeBps,
			}
			if domain.RouteWallet != "" {
				route, err := crypto.DecodeAddress(domain.RouteWallet)
				if err != nil {
					return err
				}
				cfg.RouteWallet = route.Raw()
			}
			policy.Domains[fees.NormalizeDomain(domain.Domain)] = cfg
		}
		if err := feeEngine.SetPolicy(policy); err != nil {
			return fmt.Errorf("genesis: fee policy: %w", err)
		}
	}
	return nil
}
