// Package fees evaluates and collects the exchange's fee schedule. The
// market engine only ever sees post-fee stake; fee routing happens before a
// wager reaches the ledger.
package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// DomainPlace identifies the bet-placement fee flow.
const DomainPlace = "place"

var basisPointDenominator = big.NewInt(10_000)

// DomainPolicy captures the configuration applied to a specific fee domain.
type DomainPolicy struct {
	FreeTierAllowance uint64
	FeeBps            uint32
	RouteWallet       [20]byte
}

// Policy enumerates the configured fee domains and the policy version.
type Policy struct {
	Version uint64
	Domains map[string]DomainPolicy
}

// Clone returns a deep copy of the policy to avoid aliasing the domain map
// between callers.
func (p Policy) Clone() Policy {
	clone := Policy{Version: p.Version, Domains: make(map[string]DomainPolicy, len(p.Domains))}
	for domain, cfg := range p.Domains {
		clone.Domains[NormalizeDomain(domain)] = cfg
	}
	return clone
}

// DomainConfig resolves the policy for the supplied domain if configured.
func (p Policy) DomainConfig(domain string) (DomainPolicy, bool) {
	if len(p.Domains) == 0 {
		return DomainPolicy{}, false
	}
	cfg, ok := p.Domains[NormalizeDomain(domain)]
	return cfg, ok
}

// NormalizeDomain canonicalises domain identifiers for consistent lookups.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// ApplyInput captures the context required to evaluate the fee obligation for
// a single wager.
type ApplyInput struct {
	Domain        string
	Gross         *big.Int
	UsageCount    uint64
	PolicyVersion uint64
	Config        DomainPolicy
}

// ApplyResult summarises the computed fee, the net amount that reaches the
// ledger, and the updated usage counter.
type ApplyResult struct {
	Fee             *big.Int
	Net             *big.Int
	Counter         uint64
	RouteWallet     [20]byte
	PolicyVersion   uint64
	FreeTierApplied bool
}

// Apply evaluates the policy for the supplied domain and returns the
// resulting fee split. It is pure; the caller persists the incremented
// counter and routes the balances.
func Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{
		Counter:       input.UsageCount + 1,
		PolicyVersion: input.PolicyVersion,
		RouteWallet:   input.Config.RouteWallet,
		Fee:           big.NewInt(0),
	}
	if input.Gross != nil {
		result.Net = new(big.Int).Set(input.Gross)
	} else {
		result.Net = big.NewInt(0)
	}
	if result.Net.Sign() <= 0 {
		return result
	}
	if input.Config.FreeTierAllowance > input.UsageCount {
		result.FreeTierApplied = true
		return result
	}
	if input.Config.FeeBps == 0 {
		return result
	}
	fee := new(big.Int).Mul(result.Net, big.NewInt(int64(input.Config.FeeBps)))
	fee.Div(fee, basisPointDenominator)
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}

// Storage abstracts policy and counter persistence.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Transferer moves the collected fee from the payer to the route wallet.
type Transferer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

var (
	errNilState    = errors.New("fees engine: state not configured")
	errNilTransfer = errors.New("fees engine: transferer not configured")

	policyKey          = []byte("fees/policy")
	usageCounterPrefix = []byte("fees/usage/")
)

func usageCounterKey(domain string, payer [20]byte) []byte {
	normalized := NormalizeDomain(domain)
	buf := make([]byte, len(usageCounterPrefix)+len(normalized)+1+len(payer))
	copy(buf, usageCounterPrefix)
	copy(buf[len(usageCounterPrefix):], normalized)
	buf[len(usageCounterPrefix)+len(normalized)] = ':'
	copy(buf[len(usageCounterPrefix)+len(normalized)+1:], payer[:])
	return buf
}

type storedDomainPolicy struct {
	Domain            string
	FreeTierAllowance uint64
	FeeBps            uint32
	RouteWallet       [20]byte
}

type storedPolicy struct {
	Version uint64
	Domains []storedDomainPolicy
}

// Engine binds the pure fee calculation to persistent counters and token
// movement.
type Engine struct {
	state    Storage
	transfer Transferer
}

// NewEngine constructs a fee engine. Both collaborators must be configured
// before Collect is called.
func NewEngine(state Storage, transfer Transferer) *Engine {
	return &Engine{state: state, transfer: transfer}
}

// SetPolicy persists the fee policy.
func (e *Engine) SetPolicy(policy Policy) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	stored := storedPolicy{Version: policy.Version}
	for domain, cfg := range policy.Domains {
		stored.Domains = append(stored.Domains, storedDomainPolicy{
			Domain:            NormalizeDomain(domain),
			FreeTierAllowance: cfg.FreeTierAllowance,
			FeeBps:            cfg.FeeBps,
			RouteWallet:       cfg.RouteWallet,
		})
	}
	return e.state.KVPut(policyKey, &stored)
}

// Policy loads the persisted fee policy. A missing policy is an empty one,
// meaning no fees are charged.
func (e *Engine) Policy() (Policy, error) {
	if e == nil || e.state == nil {
		return Policy{}, errNilState
	}
	var stored storedPolicy
	ok, err := e.state.KVGet(policyKey, &stored)
	if err != nil {
		return Policy{}, err
	}
	policy := Policy{Version: stored.Version, Domains: make(map[string]DomainPolicy)}
	if !ok {
		return policy, nil
	}
	for _, entry := range stored.Domains {
		policy.Domains[entry.Domain] = DomainPolicy{
			FreeTierAllowance: entry.FreeTierAllowance,
			FeeBps:            entry.FeeBps,
			RouteWallet:       entry.RouteWallet,
		}
	}
	return policy, nil
}

// Quote evaluates the fee split for gross without moving funds or advancing
// the usage counter. Callers use it to validate affordability before
// committing.
func (e *Engine) Quote(payer [20]byte, gross *big.Int, domain string) (fee, net *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if gross == nil || gross.Sign() < 0 {
		return nil, nil, fmt.Errorf("fees: gross amount must be non-negative")
	}
	policy, err := e.Policy()
	if err != nil {
		return nil, nil, err
	}
	cfg, ok := policy.DomainConfig(domain)
	if !ok {
		return big.NewInt(0), new(big.Int).Set(gross), nil
	}
	var usage uint64
	if _, err := e.state.KVGet(usageCounterKey(domain, payer), &usage); err != nil {
		return nil, nil, err
	}
	result := Apply(ApplyInput{
		Domain:        domain,
		Gross:         gross,
		UsageCount:    usage,
		PolicyVersion: policy.Version,
		Config:        cfg,
	})
	return result.Fee, result.Net, nil
}

// Collect charges the fee configured for domain against gross, moves it from
// the payer to the route wallet, and returns the net amount that may reach
// the ledger.
func (e *Engine) Collect(payer [20]byte, gross *big.Int, domain string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.transfer == nil {
		return nil, errNilTransfer
	}
	if gross == nil || gross.Sign() < 0 {
		return nil, fmt.Errorf("fees: gross amount must be non-negative")
	}
	policy, err := e.Policy()
	if err != nil {
		return nil, err
	}
	cfg, ok := policy.DomainConfig(domain)
	if !ok {
		return new(big.Int).Set(gross), nil
	}
	var usage uint64
	counterKey := usageCounterKey(domain, payer)
	if _, err := e.state.KVGet(counterKey, &usage); err != nil {
		return nil, err
	}
	result := Apply(ApplyInput{
		Domain:        domain,
		Gross:         gross,
		UsageCount:    usage,
		PolicyVersion: policy.Version,
		Config:        cfg,
	})
	if result.Fee.Sign() > 0 {
		if result.RouteWallet == ([20]byte{}) {
			return nil, fmt.Errorf("fees: no route wallet configured for domain %q", domain)
		}
		if err := e.transfer.Transfer(payer, result.RouteWallet, result.Fee); err != nil {
			return nil, err
		}
	}
	if err := e.state.KVPut(counterKey, result.Counter); err != nil {
		return nil, err
	}
	return result.Net, nil
}
