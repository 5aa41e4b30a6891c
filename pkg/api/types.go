package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/keystore"
	"github.com/uhyunpark/perpsigner/pkg/order"
	"github.com/uhyunpark/perpsigner/pkg/trader"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// OrderRequest is an order in human units. Decimal fields accept JSON strings
// or numbers; strings are preferred since they never pass through a float.
type OrderRequest struct {
	Market       string          `json:"market"`               // 0x hex, left-padded to 32 bytes
	Maker        string          `json:"maker,omitempty"`      // defaults to the signing key's address
	IsBuy        bool            `json:"isBuy"`
	ReduceOnly   bool            `json:"reduceOnly"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Leverage     decimal.Decimal `json:"leverage"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Expiration   int64           `json:"expiration"`     // Unix ms (0 = no expiry)
	Salt         string          `json:"salt,omitempty"` // decimal integer; random when empty
}

// SignOrderRequest is the payload for POST /api/v1/orders/sign
type SignOrderRequest struct {
	KeyAlias string       `json:"keyAlias"`
	Order    OrderRequest `json:"order"`
}

// VerifyOrderRequest is the payload for POST /api/v1/orders/verify.
// The order is in wire form (fixed-point integers), exactly as signed.
type VerifyOrderRequest struct {
	Order          order.Payload `json:"order"`
	TypedSignature string        `json:"typedSignature"`
	PublicKey      string        `json:"publicKey"`
	Curve          crypto.Curve  `json:"curve"`
	RequireMaker   bool          `json:"requireMaker"` // also check the key derives to order.maker
}

// TradeRequest is the payload for POST /api/v1/trades
type TradeRequest struct {
	MakerKey     string           `json:"makerKey"`
	TakerKey     string           `json:"takerKey"`
	MakerOrder   OrderRequest     `json:"makerOrder"`
	TakerOrder   *OrderRequest    `json:"takerOrder,omitempty"`   // mirrored from the maker order when absent
	FillQuantity *decimal.Decimal `json:"fillQuantity,omitempty"` // defaults to min(maker, taker) quantity
	FillPrice    *decimal.Decimal `json:"fillPrice,omitempty"`    // defaults to the maker price
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	KeyAlias    string   `json:"keyAlias"`
	Market      string   `json:"market"`
	OrderHashes []string `json:"orderHashes"`
}

// CreateKeyRequest is the payload for POST /api/v1/keys
type CreateKeyRequest struct {
	Alias string       `json:"alias"`
	Curve crypto.Curve `json:"curve"`
}

// ==============================
// REST Response Types
// ==============================

// HashResponse is returned by POST /api/v1/orders/hash
type HashResponse struct {
	Order    order.Payload `json:"order"`
	Hash     string        `json:"hash"`
	Encoding string        `json:"encoding"` // 0x hex of the canonical bytes
}

// SignOrderResponse is returned by POST /api/v1/orders/sign
type SignOrderResponse struct {
	order.SignedPayload
	Curve     crypto.Curve `json:"curve"`
	PublicKey string       `json:"publicKey"`
}

// VerifyOrderResponse is returned by POST /api/v1/orders/verify
type VerifyOrderResponse struct {
	Valid bool   `json:"valid"`
	Hash  string `json:"hash"`
}

// TradeResponse is returned by POST /api/v1/trades
type TradeResponse struct {
	Status string             `json:"status"` // "queued"
	Fill   trader.FillPayload `json:"fill"`
}

// CancelResponse is returned by POST /api/v1/orders/cancel
type CancelResponse struct {
	Status string              `json:"status"` // "queued"
	Cancel order.CancelPayload `json:"cancel"`
}

// AddressResponse is returned by GET /api/v1/addresses/{curve}/{pubkey}
type AddressResponse struct {
	Curve     crypto.Curve `json:"curve"`
	PublicKey string       `json:"publicKey"` // normalized (compressed for secp256k1)
	Address   string       `json:"address"`
}

// KeysResponse is returned by GET /api/v1/keys
type KeysResponse struct {
	Keys []keystore.Info `json:"keys"`
}

// DrainResponse is returned by POST /api/v1/outbox/drain
type DrainResponse struct {
	Items []json.RawMessage `json:"items"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string         `json:"status"`
	Scale  int32          `json:"scale"`
	Outbox map[string]int `json:"outbox"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["fills:0x...4254432d50455250"]
}

// WSAck confirms a subscription change.
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// FillUpdate is broadcast on fills:<market> when a trade is set up
type FillUpdate struct {
	Type      string             `json:"type"` // "fill"
	Market    string             `json:"market"`
	Fill      trader.FillPayload `json:"fill"`
	Timestamp int64              `json:"timestamp"` // Unix milliseconds
}
