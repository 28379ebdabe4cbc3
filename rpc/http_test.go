package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"betpool/core"
	"betpool/crypto"
	"betpool/native/fixedpoint"
	"betpool/native/oracle"
	"betpool/storage"
)

const testToken = "test-rpc-token"

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type rpcEnv struct {
	t       *testing.T
	ts      *httptest.Server
	node    *core.Node
	signer  *crypto.PrivateKey
	bettor  [20]byte
	creator [20]byte
	oracle  [20]byte
}

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func bech(t *testing.T, raw [20]byte) string {
	t.Helper()
	return crypto.MustAddress(raw[:]).String()
}

func amount(t *testing.T, s string) string {
	t.Helper()
	if _, err := fixedpoint.Parse(s); err != nil {
		t.Fatalf("bad fixture amount %q: %v", s, err)
	}
	return s
}

func newEnv(t *testing.T, cfg Config) *rpcEnv {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetNowFunc(func() int64 { return 1_000 })

	env := &rpcEnv{
		t:       t,
		node:    node,
		bettor:  addr(0x01),
		creator: addr(0x02),
		oracle:  addr(0x03),
	}
	manager := node.State()
	vault := addr(0xAA)
	if err := manager.SetPoolVault(vault); err != nil {
		t.Fatalf("set pool vault: %v", err)
	}
	mint := func(target [20]byte, value string) {
		parsed, err := fixedpoint.Parse(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if err := manager.Mint(target, parsed); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	mint(vault, "1000")
	mint(env.bettor, "100")
	if err := manager.GrantRole(oracle.RoleResolver, env.oracle); err != nil {
		t.Fatalf("grant resolver: %v", err)
	}
	signer, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	env.signer = signer
	if err := manager.GrantRole(oracle.RoleOddsSigner, signer.PubKey().Address().Raw()); err != nil {
		t.Fatalf("grant odds signer: %v", err)
	}

	server := NewServer(node, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env.ts = httptest.NewServer(server.Router())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *rpcEnv) call(token, method string, params interface{}) testResponse {
	e.t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/rpc", bytes.NewReader(body))
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		e.t.Fatalf("call %s: %v", method, err)
	}
	defer resp.Body.Close()
	var decoded testResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		e.t.Fatalf("decode %s response: %v", method, err)
	}
	return decoded
}

func (e *rpcEnv) mustResult(token, method string, params, out interface{}) {
	e.t.Helper()
	resp := e.call(token, method, params)
	if resp.Error != nil {
		e.t.Fatalf("%s failed: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			e.t.Fatalf("decode %s result: %v", method, err)
		}
	}
}

func (e *rpcEnv) signedProof(marketID, side, odds string, expiry int64) OddsProofParam {
	e.t.Helper()
	rawID, err := parseHash32(marketID)
	if err != nil {
		e.t.Fatalf("parse market id: %v", err)
	}
	parsedOdds, err := fixedpoint.Parse(odds)
	if err != nil {
		e.t.Fatalf("parse odds: %v", err)
	}
	proof, err := oracle.NewOddsProof(oracle.OddsProofDomainV1, rawID, side, parsedOdds, expiry, nil)
	if err != nil {
		e.t.Fatalf("build proof: %v", err)
	}
	if err := proof.Sign(e.signer); err != nil {
		e.t.Fatalf("sign proof: %v", err)
	}
	return OddsProofParam{
		Domain:    oracle.OddsProofDomainV1,
		MarketID:  marketID,
		Side:      side,
		Odds:      odds,
		Expiry:    expiry,
		Signature: hex.EncodeToString(proof.Signature),
	}
}

func (e *rpcEnv) openMarket(token string) MarketResult {
	e.t.Helper()
	var created MarketResult
	e.mustResult(token, "market_open", marketOpenParams{
		Creator:  bech(e.t, e.creator),
		Label:    "cup-final",
		Sides:    []string{"yes", "no"},
		Deadline: 2_000,
	}, &created)
	return created
}

func TestRPCBetLifecycle(t *testing.T) {
	env := newEnv(t, Config{AuthToken: testToken})

	created := env.openMarket(testToken)
	if len(created.Sides) != 2 || created.Label != "cup-final" {
		t.Fatalf("unexpected market: %+v", created)
	}

	proof := env.signedProof(created.ID, "yes", "2", 1_500)
	var cert CertificateResult
	env.mustResult(testToken, "market_place", marketPlaceParams{
		Caller:   bech(t, env.bettor),
		MarketID: created.ID,
		Side:     "yes",
		Stake:    amount(t, "10"),
		Odds:     amount(t, "2"),
		Proof:    proof,
	}, &cert)
	if cert.Stake != "10" || cert.Side != "yes" {
		t.Fatalf("unexpected certificate: %+v", cert)
	}

	var fetched MarketResult
	env.mustResult("", "market_get", marketGetParams{ID: created.ID}, &fetched)
	if fetched.Reserve != cert.Payout {
		t.Fatalf("reserve %s does not match promised payout %s", fetched.Reserve, cert.Payout)
	}

	var pool PoolResult
	env.mustResult("", "pool_status", nil, &pool)
	if pool.Reserved != cert.Payout {
		t.Fatalf("pool reserved %s, want %s", pool.Reserved, cert.Payout)
	}

	env.mustResult(testToken, "oracle_resolve", oracleResolveParams{
		Caller:   bech(t, env.oracle),
		MarketID: created.ID,
		Winner:   "yes",
	}, nil)

	var claimed map[string]string
	env.mustResult(testToken, "market_claim", betActionParams{
		Caller: bech(t, env.bettor),
		BetID:  cert.ID,
	}, &claimed)
	if claimed["amount"] != cert.Payout {
		t.Fatalf("claimed %s, want %s", claimed["amount"], cert.Payout)
	}

	env.mustResult("", "pool_status", nil, &pool)
	if pool.Reserved != "0" {
		t.Fatalf("pool still reserves %s after settlement", pool.Reserved)
	}

	var balance map[string]string
	env.mustResult("", "pool_balance", poolBalanceParams{Address: bech(t, env.bettor)}, &balance)
	if balance["balance"] == "90" {
		t.Fatalf("payout was not credited, balance still %s", balance["balance"])
	}
}

func TestRPCRejectsTamperedProof(t *testing.T) {
	env := newEnv(t, Config{AuthToken: testToken})
	created := env.openMarket(testToken)

	proof := env.signedProof(created.ID, "yes", "2", 1_500)
	resp := env.call(testToken, "market_place", marketPlaceParams{
		Caller:   bech(t, env.bettor),
		MarketID: created.ID,
		Side:     "yes",
		Stake:    amount(t, "10"),
		Odds:     amount(t, "3"), // does not match the attested odds
		Proof:    proof,
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestRPCAuthRequired(t *testing.T) {
	env := newEnv(t, Config{AuthToken: testToken})

	for _, token := range []string{"", "wrong-token"} {
		resp := env.call(token, "market_open", marketOpenParams{
			Creator:  bech(t, env.creator),
			Label:    "unauthorized",
			Sides:    []string{"yes", "no"},
			Deadline: 2_000,
		})
		if resp.Error == nil || resp.Error.Code != codeUnauthorized {
			t.Fatalf("token %q: expected unauthorized, got %+v", token, resp.Error)
		}
	}

	// Read methods stay open.
	if resp := env.call("", "market_list", nil); resp.Error != nil {
		t.Fatalf("market_list should not require auth: %+v", resp.Error)
	}
}

func TestRPCJWTAuth(t *testing.T) {
	const secret = "jwt-test-secret"
	env := newEnv(t, Config{JWTSecret: secret})

	signed := func(exp time.Time) string {
		token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
			"sub": "ops",
			"exp": exp.Unix(),
		}).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign jwt: %v", err)
		}
		return token
	}

	var created MarketResult
	env.mustResult(signed(time.Now().Add(time.Hour)), "market_open", marketOpenParams{
		Creator:  bech(t, env.creator),
		Label:    "jwt-market",
		Sides:    []string{"yes", "no"},
		Deadline: 2_000,
	}, &created)

	resp := env.call(signed(time.Now().Add(-time.Hour)), "market_open", marketOpenParams{
		Creator:  bech(t, env.creator),
		Label:    "expired-jwt",
		Sides:    []string{"yes", "no"},
		Deadline: 2_000,
	})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected expired JWT rejection, got %+v", resp.Error)
	}
}

func TestRPCErrorMapping(t *testing.T) {
	env := newEnv(t, Config{AuthToken: testToken})

	if resp := env.call("", "market_get", marketGetParams{ID: "not-hex"}); resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("malformed id: got %+v", resp.Error)
	}

	unknown := fmt.Sprintf("%064d", 7)
	if resp := env.call("", "market_get", marketGetParams{ID: unknown}); resp.Error == nil || resp.Error.Code != codeStateConflict {
		t.Fatalf("unknown market: got %+v", resp.Error)
	}

	if resp := env.call("", "no_such_method", nil); resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method: got %+v", resp.Error)
	}
}

func TestRPCWriteRateLimit(t *testing.T) {
	env := newEnv(t, Config{AuthToken: testToken})

	var limited bool
	for i := 0; i < writeBurst+3; i++ {
		resp := env.call(testToken, "oracle_cancel", oracleCancelParams{
			Caller:   bech(t, env.oracle),
			MarketID: fmt.Sprintf("%064d", 9),
		})
		if resp.Error != nil && resp.Error.Code == codeRateLimited {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("write burst was never rate limited")
	}
}
