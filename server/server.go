// Package server exposes the launchpad over HTTP: token creation and
// metadata, trade submission, read-only quotes and a websocket receipt
// feed. Caller identity arrives as an X-Caller-Address header, resolved
// by an upstream authentication layer the server trusts.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/curve"
	"github.com/tonpad-xyz/go-tonpad/engine"
	"github.com/tonpad-xyz/go-tonpad/ledger"
	"github.com/tonpad-xyz/go-tonpad/registry"
)

const callerHeader = "X-Caller-Address"

// Server is the HTTP front of the engine and the metadata registry.
type Server struct {
	engine   *engine.Engine
	registry *registry.Registry
	log      *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// New wires the routes. A nil logger falls back to slog.Default.
func New(eng *engine.Engine, reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   eng,
		registry: reg,
		log:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleFeed)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tokens", s.handleCreateToken)
		r.Get("/tokens", s.handleListTokens)
		r.Get("/tokens/{id}", s.handleGetToken)
		r.Delete("/tokens/{id}", s.handleDeleteToken)
		r.Get("/tokens/{id}/wallets/{holder}", s.handleGetWallet)
		r.Get("/tokens/{id}/events", s.handleGetEvents)
		r.Post("/trade", s.handleTrade)
		r.Get("/quote", s.handleQuote)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "err", err)
	}
}

// writeError maps an engine error kind to an HTTP status and a stable
// JSON error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := engine.Kind(err)
	if errors.Is(err, registry.ErrNotFound) {
		kind = "TokenNotFound"
	}

	status := http.StatusBadRequest
	switch kind {
	case "Unauthorized":
		status = http.StatusUnauthorized
	case "TokenNotFound", "PoolDoesNotExist", "NoPendingSellRequest":
		status = http.StatusNotFound
	case "TokenExists", "PoolAlreadyExists", "PendingSellAlreadyExists",
		"PoolInactive", "Conflict":
		status = http.StatusConflict
	case "Internal":
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: err.Error()}})
}

func caller(r *http.Request) (ledger.Address, error) {
	addr := r.Header.Get(callerHeader)
	if addr == "" {
		return "", fmt.Errorf("missing %s header", callerHeader)
	}
	return ledger.Address(addr), nil
}

func parseAmount(field, v string) (*uint256.Int, error) {
	if v == "" {
		return nil, fmt.Errorf("%w: %s is required", ledger.ErrInvalidAmount, field)
	}
	amt, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ledger.ErrInvalidAmount, field, err)
	}
	return amt, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tokens": len(s.engine.Tokens()),
	})
}

type agentRequest struct {
	DisplayName  string `json:"displayName"`
	Greeting     string `json:"greeting,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type createTokenRequest struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol"`
	Description  string        `json:"description,omitempty"`
	ImageURI     string        `json:"imageUri,omitempty"`
	MaxSupply    string        `json:"maxSupply"`
	Mintable     bool          `json:"mintable"`
	InitialPrice string        `json:"initialPrice"`
	Steepness    string        `json:"steepness,omitempty"`
	BaseAmount   string        `json:"baseAmount"`
	Operators    []string      `json:"operators,omitempty"`
	Agent        *agentRequest `json:"agent,omitempty"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Message: err.Error()}})
		return
	}
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: "BadRequest", Message: err.Error()}})
		return
	}
	if req.ID == "" || req.Name == "" || req.Symbol == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: "BadRequest", Message: "id, name and symbol are required"}})
		return
	}

	maxSupply, err := parseAmount("maxSupply", req.MaxSupply)
	if err != nil {
		s.writeError(w, err)
		return
	}
	initialPrice, err := parseAmount("initialPrice", req.InitialPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	baseAmount, err := parseAmount("baseAmount", req.BaseAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	steepness := uint256.NewInt(0)
	if req.Steepness != "" {
		if steepness, err = parseAmount("steepness", req.Steepness); err != nil {
			s.writeError(w, err)
			return
		}
	}

	params := engine.TokenParams{
		ID:        ledger.TokenID(req.ID),
		Owner:     owner,
		MaxSupply: maxSupply,
		Mintable:  req.Mintable,
		Curve: curve.Params{
			InitialPrice: initialPrice,
			Steepness:    steepness,
			BaseAmount:   baseAmount,
		},
	}
	for _, op := range req.Operators {
		params.Operators = append(params.Operators, ledger.Address(op))
	}
	if err := s.engine.CreateToken(r.Context(), params); err != nil {
		s.writeError(w, err)
		return
	}

	// Metadata is best effort: the token trades either way.
	meta := registry.TokenMeta{
		ID:          req.ID,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: req.Description,
		ImageURI:    req.ImageURI,
		Creator:     string(owner),
	}
	if err := s.registry.SaveToken(r.Context(), meta); err != nil {
		s.log.Warn("save token metadata", "token", req.ID, "err", err)
	}
	if req.Agent != nil {
		err := s.registry.SaveAgent(r.Context(), registry.AgentMeta{
			TokenID:      req.ID,
			DisplayName:  req.Agent.DisplayName,
			Greeting:     req.Agent.Greeting,
			SystemPrompt: req.Agent.SystemPrompt,
		})
		if err != nil {
			s.log.Warn("save agent metadata", "token", req.ID, "err", err)
		}
	}

	state, err := s.engine.TokenState(ledger.TokenID(req.ID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tokenResponse{Meta: &meta, State: newStateBody(state)})
}

// stateBody is the wire form of a token snapshot, amounts in decimal.
type stateBody struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	TotalSupply string `json:"totalSupply"`
	MaxSupply   string `json:"maxSupply"`
	Mintable    bool   `json:"mintable"`
	Price       string `json:"price"`
	PoolBalance string `json:"poolBalance,omitempty"`
	PoolActive  bool   `json:"poolActive"`
	Holders     int    `json:"holders"`
	Version     int    `json:"version"`
}

func newStateBody(st *engine.TokenState) *stateBody {
	body := &stateBody{
		ID:          string(st.ID),
		Owner:       string(st.Owner),
		TotalSupply: st.TotalSupply.Dec(),
		MaxSupply:   st.MaxSupply.Dec(),
		Mintable:    st.Mintable,
		Price:       st.Price.Dec(),
		PoolActive:  st.PoolActive,
		Holders:     st.Holders,
		Version:     st.Version,
	}
	if st.PoolBalance != nil {
		body.PoolBalance = st.PoolBalance.Dec()
	}
	return body
}

type tokenResponse struct {
	Meta  *registry.TokenMeta `json:"meta,omitempty"`
	Agent *registry.AgentMeta `json:"agent,omitempty"`
	State *stateBody          `json:"state"`
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	out := make([]tokenResponse, 0)
	for _, id := range s.engine.Tokens() {
		state, err := s.engine.TokenState(id)
		if err != nil {
			continue
		}
		resp := tokenResponse{State: newStateBody(state)}
		if meta, err := s.registry.Token(r.Context(), string(id)); err == nil {
			resp.Meta = meta
		}
		out = append(out, resp)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.engine.TokenState(ledger.TokenID(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := tokenResponse{State: newStateBody(state)}
	if meta, err := s.registry.Token(r.Context(), id); err == nil {
		resp.Meta = meta
	}
	if agent, err := s.registry.Agent(r.Context(), id); err == nil {
		resp.Agent = agent
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleDeleteToken removes a token's metadata from the registry. Only
// the creator may do so. The ledger and event stream are untouched: the
// token keeps trading, it just loses its listing.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Message: err.Error()}})
		return
	}
	id := chi.URLParam(r, "id")
	meta, err := s.registry.Token(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if meta.Creator != string(addr) {
		s.writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Message: "only the creator may delete token metadata"}})
		return
	}
	if err := s.registry.DeleteToken(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	id := ledger.TokenID(chi.URLParam(r, "id"))
	holder := ledger.Address(chi.URLParam(r, "holder"))
	ws, err := s.engine.WalletState(id, holder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token":   string(ws.Token),
		"holder":  string(ws.Holder),
		"balance": ws.Balance.Dec(),
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := ledger.TokenID(chi.URLParam(r, "id"))
	events, err := s.engine.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

type tradeRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
	Amount string `json:"amount,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "Unauthorized", Message: err.Error()}})
		return
	}
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: "BadRequest", Message: err.Error()}})
		return
	}

	trade := engine.Trade{
		Token:  ledger.TokenID(req.Token),
		Caller: addr,
		Action: engine.Action(req.Action),
		From:   ledger.Address(req.From),
		To:     ledger.Address(req.To),
	}
	if req.Amount != "" {
		if trade.Amount, err = parseAmount("amount", req.Amount); err != nil {
			s.writeError(w, err)
			return
		}
	}

	rcpt, err := s.engine.Submit(r.Context(), trade)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReceiptBody(rcpt))
}

// receiptBody is the wire form of a settlement receipt.
type receiptBody struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	Action      string    `json:"action"`
	Caller      string    `json:"caller"`
	TokenAmount string    `json:"tokenAmount,omitempty"`
	TonAmount   string    `json:"tonAmount,omitempty"`
	TotalSupply string    `json:"totalSupply"`
	Version     int       `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
}

func newReceiptBody(rcpt *engine.Receipt) receiptBody {
	body := receiptBody{
		ID:          rcpt.ID,
		Token:       string(rcpt.Token),
		Action:      string(rcpt.Action),
		Caller:      string(rcpt.Caller),
		TotalSupply: rcpt.TotalSupply.Dec(),
		Version:     rcpt.Version,
		Timestamp:   rcpt.Timestamp,
	}
	if rcpt.TokenAmount != nil {
		body.TokenAmount = rcpt.TokenAmount.Dec()
	}
	if rcpt.TonAmount != nil {
		body.TonAmount = rcpt.TonAmount.Dec()
	}
	return body
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := ledger.TokenID(q.Get("token"))
	amount, err := parseAmount("amount", q.Get("amount"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch side := q.Get("side"); side {
	case "buy":
		units, cost, err := s.engine.QuoteBuy(id, amount)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{
			"token": string(id), "side": side,
			"tokenAmount": units.Dec(), "tonAmount": cost.Dec(),
		})
	case "sell":
		proceeds, err := s.engine.QuoteSell(id, amount)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{
			"token": string(id), "side": side,
			"tokenAmount": amount.Dec(), "tonAmount": proceeds.Dec(),
		})
	default:
		s.writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Kind: "BadRequest", Message: "side must be buy or sell"}})
	}
}
