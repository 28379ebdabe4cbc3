package rpc

import (
	"net/http"

	"betpool/crypto"
	"betpool/native/fees"
)

type feeDomainResult struct {
	FreeTierAllowance uint64 `json:"freeTierAllowance"`
	FeeBps            uint32 `json:"feeBps"`
	RouteWallet       string `json:"routeWallet"`
}

type feePolicyResult struct {
	Version uint64                     `json:"version"`
	Domains map[string]feeDomainResult `json:"domains"`
}

func (s *Server) handleFeesPolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	policy, err := s.node.FeePolicy()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	result := feePolicyResult{Version: policy.Version, Domains: make(map[string]feeDomainResult, len(policy.Domains))}
	for domain, cfg := range policy.Domains {
		result.Domains[domain] = feeDomainResult{
			FreeTierAllowance: cfg.FreeTierAllowance,
			FeeBps:            cfg.FeeBps,
			RouteWallet:       crypto.MustAddress(cfg.RouteWallet[:]).String(),
		}
	}
	writeResult(w, req.ID, result)
}

type feeDomainParam struct {
	Domain            string `json:"domain"`
	FreeTierAllowance uint64 `json:"freeTierAllowance"`
	FeeBps            uint32 `json:"feeBps"`
	RouteWallet       string `json:"routeWallet"`
}

type feesSetPolicyParams struct {
	Caller  string           `json:"caller"`
	Version uint64           `json:"version"`
	Domains []feeDomainParam `json:"domains"`
}

func (s *Server) handleFeesSetPolicy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params feesSetPolicyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	policy := fees.Policy{Version: params.Version, Domains: make(map[string]fees.DomainPolicy, len(params.Domains))}
	for _, domain := range params.Domains {
		route, err := parseAddress(domain.RouteWallet)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		policy.Domains[domain.Domain] = fees.DomainPolicy{
			FreeTierAllowance: domain.FreeTierAllowance,
			FeeBps:            domain.FeeBps,
			RouteWallet:       route,
		}
	}
	if err := s.node.SetFeePolicy(caller, policy); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"applied": true})
}
