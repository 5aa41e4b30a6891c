package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
	"github.com/uhyunpark/perpsigner/pkg/keystore"
	"github.com/uhyunpark/perpsigner/pkg/order"
	"github.com/uhyunpark/perpsigner/pkg/outbox"
	"github.com/uhyunpark/perpsigner/pkg/trader"
)

// maxBodyBytes caps request bodies; a cancellation of many hashes is the
// largest legitimate payload.
const maxBodyBytes = 1 << 20

// FillPublisher relays fill instructions to peers.
type FillPublisher interface {
	PublishFill(ctx context.Context, f trader.FillInstruction) error
}

// Options configures a Server. Keys and Outbox are required.
type Options struct {
	Codec          fixedpoint.Codec
	Keys           keystore.Store
	Outbox         *outbox.Outbox
	Relay          FillPublisher // optional
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	codec   fixedpoint.Codec
	builder *order.Builder
	keys    keystore.Store
	trader  *trader.Trader
	outbox  *outbox.Outbox
	relay   FillPublisher
	log     *zap.SugaredLogger
	origins []string

	router *mux.Router
	hub    *Hub // WebSocket hub
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	s := &Server{
		codec:   opts.Codec,
		builder: order.NewBuilder(opts.Codec),
		keys:    opts.Keys,
		trader:  trader.New(logger),
		outbox:  opts.Outbox,
		relay:   opts.Relay,
		log:     logger,
		origins: origins,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
	}

	s.setupRoutes()
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders/hash", s.handleHashOrder).Methods("POST")
	api.HandleFunc("/orders/sign", s.handleSignOrder).Methods("POST")
	api.HandleFunc("/orders/verify", s.handleVerifyOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Trade setup
	api.HandleFunc("/trades", s.handleSetupTrade).Methods("POST")

	// Keys and addresses
	api.HandleFunc("/keys", s.handleListKeys).Methods("GET")
	api.HandleFunc("/keys", s.handleCreateKey).Methods("POST")
	api.HandleFunc("/addresses/{curve}/{pubkey}", s.handleGetAddress).Methods("GET")

	// Settlement hand-off
	api.HandleFunc("/outbox/drain", s.handleDrainOutbox).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and serves on addr until Shutdown is called. Start
// after Shutdown returns nil without serving.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go s.hub.Run(ctx)

	s.log.Infow("api_starting", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully. It is safe to call from any
// goroutine, before or after Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHashOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := s.buildOrder(req, order.Address{})
	if err != nil {
		respondErr(w, "invalid order", err)
		return
	}
	enc, err := order.Encode(o)
	if err != nil {
		respondErr(w, "encoding failed", err)
		return
	}
	hash, err := order.HashOrder(o)
	if err != nil {
		respondErr(w, "hashing failed", err)
		return
	}

	respondJSON(w, HashResponse{
		Order:    order.ToPayload(o),
		Hash:     hash.Hex(),
		Encoding: "0x" + hex.EncodeToString(enc),
	})
}

func (s *Server) handleSignOrder(w http.ResponseWriter, r *http.Request) {
	var req SignOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	signer, err := keystore.Signer(s.keys, req.KeyAlias)
	if err != nil {
		respondErr(w, "unknown key", err)
		return
	}
	o, err := s.buildOrder(req.Order, signer.Address())
	if err != nil {
		respondErr(w, "invalid order", err)
		return
	}

	signed, err := order.Sign(r.Context(), o, signer)
	if err != nil {
		respondErr(w, "signing failed", err)
		return
	}
	payload, err := order.ToSignedPayload(signed)
	if err != nil {
		respondErr(w, "signing failed", err)
		return
	}

	s.log.Infow("order_signed",
		"key", req.KeyAlias,
		"curve", signer.Curve().String(),
		"market", o.Market.Hex(),
		"side", o.Side(),
		"hash", payload.Hash,
	)

	respondJSON(w, SignOrderResponse{
		SignedPayload: payload,
		Curve:         signer.Curve(),
		PublicKey:     signer.PublicKey().Hex(),
	})
}

func (s *Server) handleVerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req VerifyOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := req.Order.ToOrder()
	if err != nil {
		respondErr(w, "invalid order", err)
		return
	}
	sig, err := crypto.ParseTypedSignatureHex(req.TypedSignature)
	if err != nil {
		respondErr(w, "invalid signature", err)
		return
	}
	pub, err := crypto.ParsePublicKeyHex(req.Curve, req.PublicKey)
	if err != nil {
		respondErr(w, "invalid public key", err)
		return
	}

	verify := order.Verify
	if req.RequireMaker {
		verify = order.VerifyMaker
	}
	valid, err := verify(o, sig, pub)
	if err != nil {
		respondErr(w, "verification failed", err)
		return
	}
	hash, err := order.HashOrder(o)
	if err != nil {
		respondErr(w, "hashing failed", err)
		return
	}

	respondJSON(w, VerifyOrderResponse{Valid: valid, Hash: hash.Hex()})
}

func (s *Server) handleSetupTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	makerSigner, err := keystore.Signer(s.keys, req.MakerKey)
	if err != nil {
		respondErr(w, "unknown maker key", err)
		return
	}
	takerSigner, err := keystore.Signer(s.keys, req.TakerKey)
	if err != nil {
		respondErr(w, "unknown taker key", err)
		return
	}

	tr := trader.TradeRequest{MakerSigner: makerSigner, TakerSigner: takerSigner}
	if tr.MakerOrder, err = s.buildOrder(req.MakerOrder, makerSigner.Address()); err != nil {
		respondErr(w, "invalid maker order", err)
		return
	}
	if req.TakerOrder != nil {
		taker, err := s.buildOrder(*req.TakerOrder, takerSigner.Address())
		if err != nil {
			respondErr(w, "invalid taker order", err)
			return
		}
		tr.TakerOrder = &taker
	}
	if req.FillQuantity != nil {
		if tr.FillQuantity, err = s.codec.ToFixedPointExact(*req.FillQuantity); err != nil {
			respondErr(w, "invalid fill quantity", err)
			return
		}
	}
	if req.FillPrice != nil {
		if tr.FillPrice, err = s.codec.ToFixedPointExact(*req.FillPrice); err != nil {
			respondErr(w, "invalid fill price", err)
			return
		}
	}

	fill, err := s.trader.SetupTrade(r.Context(), tr)
	if err != nil {
		respondErr(w, "trade setup failed", err)
		return
	}

	if err := s.outbox.PushFill(fill); err != nil {
		respondErr(w, "failed to queue fill", err)
		return
	}
	s.BroadcastFill(fill)
	if s.relay != nil {
		if err := s.relay.PublishFill(r.Context(), fill); err != nil {
			// The fill is already queued locally; peers are best effort.
			s.log.Warnw("relay_publish_failed", "err", err)
		}
	}

	respondJSON(w, TradeResponse{Status: "queued", Fill: fill.Payload()})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	signer, err := keystore.Signer(s.keys, req.KeyAlias)
	if err != nil {
		respondErr(w, "unknown key", err)
		return
	}
	market, err := crypto.HexToAddress(req.Market)
	if err != nil {
		respondErr(w, "invalid market", err)
		return
	}

	c := order.Cancellation{Market: market, Maker: signer.Address()}
	for _, h := range req.OrderHashes {
		hash, err := order.ParseHash(h)
		if err != nil {
			respondErr(w, "invalid order hash", err)
			return
		}
		c.OrderHashes = append(c.OrderHashes, hash)
	}

	signed, err := order.SignCancellation(r.Context(), c, signer)
	if err != nil {
		respondErr(w, "signing failed", err)
		return
	}
	if err := s.outbox.PushCancel(signed); err != nil {
		respondErr(w, "failed to queue cancellation", err)
		return
	}

	s.log.Infow("cancel_signed", "key", req.KeyAlias, "market", market.Hex(), "orders", len(c.OrderHashes))

	respondJSON(w, CancelResponse{Status: "queued", Cancel: order.ToCancelPayload(signed)})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	entries, err := s.keys.List()
	if err != nil {
		respondErr(w, "failed to list keys", err)
		return
	}
	infos := make([]keystore.Info, len(entries))
	for i, e := range entries {
		infos[i] = e.Info()
	}
	respondJSON(w, KeysResponse{Keys: infos})
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e, err := keystore.Generate(s.keys, req.Alias, req.Curve)
	if err != nil {
		respondErr(w, "failed to create key", err)
		return
	}

	s.log.Infow("key_created", "alias", e.Alias, "curve", e.Curve.String(), "address", e.Address)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(e.Info())
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	curve, err := crypto.ParseCurve(vars["curve"])
	if err != nil {
		respondErr(w, "invalid curve", err)
		return
	}
	pub, err := crypto.ParsePublicKeyHex(curve, vars["pubkey"])
	if err != nil {
		respondErr(w, "invalid public key", err)
		return
	}

	respondJSON(w, AddressResponse{
		Curve:     curve,
		PublicKey: pub.Hex(),
		Address:   crypto.DeriveAddress(pub).Hex(),
	})
}

func (s *Server) handleDrainOutbox(w http.ResponseWriter, r *http.Request) {
	var maxBytes int64
	if v := r.URL.Query().Get("maxBytes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid maxBytes", v)
			return
		}
		maxBytes = n
	}

	items := s.outbox.Drain(maxBytes)
	resp := DrainResponse{Items: make([]json.RawMessage, 0, len(items))}
	for _, item := range items {
		if !json.Valid(item) {
			s.log.Warnw("outbox_item_dropped", "bytes", len(item))
			continue
		}
		resp.Items = append(resp.Items, json.RawMessage(item))
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for kind, n := range s.outbox.Counts() {
		counts[kind.String()] = n
	}
	respondJSON(w, HealthResponse{Status: "ok", Scale: s.codec.Scale(), Outbox: counts})
}

// ==============================
// Broadcast Methods
// ==============================

// FillChannel is the WebSocket channel carrying fills for market.
func FillChannel(market order.Address) string {
	return "fills:" + market.Hex()
}

// BroadcastFill sends a fill to WebSocket clients subscribed to its market.
// Fills received from peers are broadcast through here as well.
func (s *Server) BroadcastFill(f trader.FillInstruction) {
	s.hub.BroadcastToChannel(FillChannel(f.Market()), FillUpdate{
		Type:      "fill",
		Market:    f.Market().Hex(),
		Fill:      f.Payload(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

// buildOrder converts a request into an order. An empty maker defaults to
// defaultMaker.
func (s *Server) buildOrder(req OrderRequest, defaultMaker order.Address) (order.Order, error) {
	market, err := crypto.HexToAddress(req.Market)
	if err != nil {
		return order.Order{}, fmt.Errorf("market: %w", err)
	}
	maker := defaultMaker
	if req.Maker != "" {
		if maker, err = crypto.HexToAddress(req.Maker); err != nil {
			return order.Order{}, fmt.Errorf("maker: %w", err)
		}
	}

	var salt *big.Int
	if req.Salt != "" {
		n, ok := new(big.Int).SetString(req.Salt, 10)
		if !ok || n.Sign() < 0 {
			return order.Order{}, fmt.Errorf("%w: salt %q", order.ErrInvalidOrder, req.Salt)
		}
		salt = n
	}

	return s.builder.Build(order.Params{
		Market:       market,
		Maker:        maker,
		IsBuy:        req.IsBuy,
		ReduceOnly:   req.ReduceOnly,
		Price:        req.Price,
		Quantity:     req.Quantity,
		Leverage:     req.Leverage,
		TriggerPrice: req.TriggerPrice,
		Expiration:   req.Expiration,
		Salt:         salt,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes. Anything that is not a
// known input problem is a server error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, keystore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, keystore.ErrExists):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, keystore.ErrInvalidAlias),
		errors.Is(err, crypto.ErrSignatureFormat),
		errors.Is(err, crypto.ErrKeyFormat),
		errors.Is(err, crypto.ErrUnsupportedCurve),
		errors.Is(err, crypto.ErrAddressFormat),
		errors.Is(err, order.ErrCurveMismatch),
		errors.Is(err, order.ErrHashFormat),
		errors.Is(err, order.ErrFieldOverflow),
		errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, fixedpoint.ErrPrecision),
		errors.Is(err, fixedpoint.ErrNegative),
		errors.Is(err, trader.ErrFillQuantity),
		errors.Is(err, trader.ErrFillPrice),
		errors.Is(err, trader.ErrOrderPairing),
		errors.Is(err, trader.ErrMissingKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, msg string, err error) {
	respondError(w, statusFor(err), msg, err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
