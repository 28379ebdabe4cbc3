package rpc

import "net/http"

type oracleResolveParams struct {
	Caller   string `json:"caller"`
	MarketID string `json:"marketId"`
	Winner   string `json:"winner"`
}

func (s *Server) handleOracleResolve(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params oracleResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	marketID, err := parseHash32(params.MarketID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.ResolveMarket(caller, marketID, params.Winner); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"resolved": true})
}

type oracleCancelParams struct {
	Caller   string `json:"caller"`
	MarketID string `json:"marketId"`
}

func (s *Server) handleOracleCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params oracleCancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	marketID, err := parseHash32(params.MarketID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.CancelMarket(caller, marketID); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}
