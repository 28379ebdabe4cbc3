// Package rpc exposes the node over JSON-RPC 2.0 with a websocket event
// stream, Prometheus metrics, and a health probe. Mutating methods require
// bearer authentication and are rate limited per source address.
package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"betpool/core"
	"betpool/core/state"
	"betpool/native/certs"
	"betpool/native/market"
	"betpool/native/oracle"
	"betpool/observability"
	"betpool/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	writeBurst         = 5
	writeRatePerMinute = 30
	limiterTTL         = 15 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeStateConflict  = -32030
	codeRateLimited    = -32020
)

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config carries the server's authentication and listener settings.
type Config struct {
	// AuthToken is compared verbatim against bearer credentials. Ignored
	// when JWTSecret is set.
	AuthToken string
	// JWTSecret enables HS256-signed bearer tokens with an exp claim.
	JWTSecret string
}

// Server routes JSON-RPC requests to the node.
type Server struct {
	node   *core.Node
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*sourceLimiter
}

// NewServer constructs an RPC server around a node.
func NewServer(node *core.Node, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:     node,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		limiters: make(map[string]*sourceLimiter),
	}
}

// Router assembles the HTTP surface: the RPC endpoint, the websocket event
// stream, metrics, and a health probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodPost, "/rpc", otelhttp.NewHandler(http.HandlerFunc(s.handle), "rpc"))
	r.Get("/ws/events", s.handleEventsWS)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Start serves the router until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type methodSpec struct {
	handler func(http.ResponseWriter, *http.Request, *RPCRequest)
	auth    bool
	write   bool
}

func (s *Server) methods() map[string]methodSpec {
	return map[string]methodSpec{
		"market_open":     {handler: s.handleMarketOpen, auth: true, write: true},
		"market_get":      {handler: s.handleMarketGet},
		"market_list":     {handler: s.handleMarketList},
		"market_place":    {handler: s.handleMarketPlace, auth: true, write: true},
		"market_preview":  {handler: s.handleMarketPreview},
		"market_claim":    {handler: s.handleMarketClaim, auth: true, write: true},
		"market_withdraw": {handler: s.handleMarketWithdraw, auth: true, write: true},
		"cert_get":        {handler: s.handleCertGet},
		"cert_transfer":   {handler: s.handleCertTransfer, auth: true, write: true},
		"oracle_resolve":  {handler: s.handleOracleResolve, auth: true, write: true},
		"oracle_cancel":   {handler: s.handleOracleCancel, auth: true, write: true},
		"pool_status":     {handler: s.handlePoolStatus},
		"pool_balance":    {handler: s.handlePoolBalance},
		"fees_policy":     {handler: s.handleFeesPolicy},
		"fees_setPolicy":  {handler: s.handleFeesSetPolicy, auth: true, write: true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	spec, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	if spec.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, http.StatusUnauthorized, time.Since(started))
			s.logger.Warn("unauthorized RPC request",
				slog.String("method", req.Method),
				slog.String("reason", authErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	if spec.write {
		source := clientSource(r)
		if !s.allowSource(source, time.Now()) {
			observability.ModuleMetrics().RecordThrottle(moduleOf(req.Method), "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "write rate limit exceeded", source)
			return
		}
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	spec.handler(recorder, r, req)
	observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, recorder.status, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if secret := strings.TrimSpace(s.cfg.JWTSecret); secret != "" {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
		if err != nil || !parsed.Valid {
			return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
		}
		return nil
	}
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		entry = &sourceLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(writeRatePerMinute)/60.0), writeBurst),
		}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeDomainError maps ledger errors onto JSON-RPC error codes. Validation
// failures are invalid params, lifecycle conflicts are state conflicts, and
// invariant violations surface as opaque internal errors.
func (s *Server) writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case market.IsInvariant(err):
		s.logger.Error("invariant violation", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal accounting error", nil)
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case isStateError(err):
		writeError(w, http.StatusConflict, id, codeStateConflict, err.Error(), nil)
	case errors.Is(err, state.ErrUnauthorized), errors.Is(err, oracle.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		market.ErrInvalidParams,
		market.ErrInvalidSide,
		market.ErrInvalidStake,
		market.ErrInvalidOdds,
		market.ErrInsufficientFunds,
		oracle.ErrUnknownSide,
		oracle.ErrInvalidProof,
		state.ErrInsufficientBalance,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isStateError(err error) bool {
	for _, sentinel := range []error{
		market.ErrMarketExists,
		market.ErrMarketNotFound,
		market.ErrMarketNotOpen,
		market.ErrMarketNotResolved,
		market.ErrMarketNotCancelled,
		market.ErrNotWinningSide,
		market.ErrBetNotFound,
		market.ErrAlreadySettled,
		market.ErrNotBetOwner,
		oracle.ErrUnknownMarket,
		oracle.ErrAlreadyResolved,
		oracle.ErrNotResolved,
		certs.ErrNotFound,
		certs.ErrNotOwner,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
