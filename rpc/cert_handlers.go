package rpc

import (
	"net/http"

	"betpool/native/market"
)

type certGetParams struct {
	ID string `json:"id"`
}

func (s *Server) handleCertGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params certGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cert, ok, err := s.node.Certificate(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		s.writeDomainError(w, req.ID, market.ErrBetNotFound)
		return
	}
	writeResult(w, req.ID, certificateResultFrom(cert))
}

type certTransferParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	BetID string `json:"betId"`
}

func (s *Server) handleCertTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params certTransferParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	betID, err := parseHash32(params.BetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TransferCertificate(from, to, betID); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"transferred": true})
}
