package market

import "math/big"

// Pool is a point-in-time snapshot of the shared liquidity pool: the
// collateral the vault holds and the portion reserved against open markets.
type Pool struct {
	Balance  *big.Int
	Reserved *big.Int
}

// Free returns the liquidity available to underwrite new obligations. A
// negative free balance means the pool has promised more than it holds; that
// is an accounting defect and is surfaced as an invariant violation
// rather than clamped.
func (p *Pool) Free() (*big.Int, error) {
	free := new(big.Int).Sub(p.Balance, p.Reserved)
	if free.Sign() < 0 {
		return nil, invariantf("pool reserved %s exceeds balance %s", p.Reserved, p.Balance)
	}
	return free, nil
}

// PoolSnapshot reads the current pool balance and reserved total.
func (e *Engine) PoolSnapshot() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.token == nil {
		return nil, errNilToken
	}
	balance, err := e.token.BalanceOf()
	if err != nil {
		return nil, err
	}
	reserved, err := e.state.PoolReserved()
	if err != nil {
		return nil, err
	}
	return &Pool{Balance: balance, Reserved: reserved}, nil
}

// raiseReserve grows the pool-wide reserved total by delta, checking pool
// solvency against the supplied post-operation balance before committing.
func (e *Engine) raiseReserve(delta, balance *big.Int) error {
	if delta.Sign() < 0 {
		return invariantf("negative reserve raise %s", delta)
	}
	if delta.Sign() == 0 {
		return nil
	}
	reserved, err := e.state.PoolReserved()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(reserved, delta)
	if next.Cmp(balance) > 0 {
		return invariantf("reserve raise to %s exceeds pool balance %s", next, balance)
	}
	return e.state.SetPoolReserved(next)
}

// releaseReserve shrinks the pool-wide reserved total by delta. A release
// larger than the outstanding total indicates double-release and fails
// loudly.
func (e *Engine) releaseReserve(delta *big.Int) error {
	if delta.Sign() < 0 {
		return invariantf("negative reserve release %s", delta)
	}
	if delta.Sign() == 0 {
		return nil
	}
	reserved, err := e.state.PoolReserved()
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(reserved, delta)
	if next.Sign() < 0 {
		return invariantf("reserve release %s exceeds reserved total %s", delta, reserved)
	}
	return e.state.SetPoolReserved(next)
}
