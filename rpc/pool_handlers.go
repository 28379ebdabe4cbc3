package rpc

import (
	"math/big"
	"net/http"

	"betpool/native/fixedpoint"
)

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	pool, err := s.node.Pool()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	free := new(big.Int).Sub(pool.Balance, pool.Reserved)
	writeResult(w, req.ID, PoolResult{
		Balance:  fixedpoint.Format(pool.Balance),
		Reserved: fixedpoint.Format(pool.Reserved),
		Free:     fixedpoint.Format(free),
	})
}

type poolBalanceParams struct {
	Address string `json:"address"`
}

func (s *Server) handlePoolBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params poolBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": fixedpoint.Format(balance)})
}
