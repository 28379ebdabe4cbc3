package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"betpool/native/fixedpoint"
	"betpool/native/oracle"
)

type settleFunc func(caller [20]byte, betID [32]byte) (*big.Int, error)

type marketOpenParams struct {
	Creator  string   `json:"creator"`
	Label    string   `json:"label"`
	Sides    []string `json:"sides"`
	Deadline int64    `json:"deadline"`
}

func (s *Server) handleMarketOpen(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketOpenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	creator, err := parseAddress(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	m, err := s.node.OpenMarket(creator, params.Label, params.Sides, params.Deadline)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketResultFrom(m))
}

type marketGetParams struct {
	ID string `json:"id"`
}

func (s *Server) handleMarketGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketGetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	m, err := s.node.Market(id)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketResultFrom(m))
}

func (s *Server) handleMarketList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	ids, err := s.node.Markets()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, hex.EncodeToString(id[:]))
	}
	writeResult(w, req.ID, out)
}

type marketPlaceParams struct {
	Caller   string         `json:"caller"`
	MarketID string         `json:"marketId"`
	Side     string         `json:"side"`
	Stake    string         `json:"stake"`
	Odds     string         `json:"odds"`
	Proof    OddsProofParam `json:"proof"`
}

func (s *Server) handleMarketPlace(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketPlaceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, marketID, stake, odds, ok := s.parsePlacement(w, req, params.Caller, params.MarketID, params.Stake, params.Odds)
	if !ok {
		return
	}
	proof, err := parseOddsProof(params.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cert, err := s.node.PlaceBet(caller, marketID, params.Side, stake, odds, proof)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, certificateResultFrom(cert))
}

type marketPreviewParams struct {
	Caller   string `json:"caller"`
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
	Stake    string `json:"stake"`
	Odds     string `json:"odds"`
}

func (s *Server) handleMarketPreview(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketPreviewParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, marketID, stake, odds, ok := s.parsePlacement(w, req, params.Caller, params.MarketID, params.Stake, params.Odds)
	if !ok {
		return
	}
	payout, err := s.node.PreviewPayout(caller, marketID, params.Side, stake, odds)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"payout": fixedpoint.Format(payout)})
}

type betActionParams struct {
	Caller string `json:"caller"`
	BetID  string `json:"betId"`
}

func (s *Server) handleMarketClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.settleBet(w, req, s.node.Claim)
}

func (s *Server) handleMarketWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.settleBet(w, req, s.node.Withdraw)
}

func (s *Server) settleBet(w http.ResponseWriter, req *RPCRequest, settle settleFunc) {
	var params betActionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	betID, err := parseHash32(params.BetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := settle(caller, betID)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": fixedpoint.Format(amount)})
}

// parsePlacement decodes the shared caller/market/stake/odds fields of the
// placement and preview methods, writing the error response itself on failure.
func (s *Server) parsePlacement(w http.ResponseWriter, req *RPCRequest, rawCaller, rawMarket, rawStake, rawOdds string) (caller [20]byte, marketID [32]byte, stake, odds *big.Int, ok bool) {
	var err error
	if caller, err = parseAddress(rawCaller); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if marketID, err = parseHash32(rawMarket); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if stake, err = parseAmount(rawStake); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if odds, err = parseAmount(rawOdds); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ok = true
	return
}

func parseOddsProof(param OddsProofParam) (*oracle.OddsProof, error) {
	marketID, err := parseHash32(param.MarketID)
	if err != nil {
		return nil, err
	}
	odds, err := parseAmount(param.Odds)
	if err != nil {
		return nil, err
	}
	signature, err := parseSignature(param.Signature)
	if err != nil {
		return nil, err
	}
	return oracle.NewOddsProof(param.Domain, marketID, param.Side, odds, param.Expiry, signature)
}
