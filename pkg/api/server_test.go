package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
	"github.com/uhyunpark/perpsigner/pkg/fixedpoint"
	"github.com/uhyunpark/perpsigner/pkg/keystore"
	"github.com/uhyunpark/perpsigner/pkg/outbox"
	"github.com/uhyunpark/perpsigner/pkg/trader"
)

const (
	aliceKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	aliceAddr   = "0x1beb40e6e4ffd7989d88a12e27866ae179affb144eb5b0024249c77e0afde415"
	alicePub    = "0x024e3b81af9c2234cad09d679ce6035ed1392347ce64ce405f5dcd36228a25de6e"
	bobSeed     = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	bobAddr     = "0x304af458e90e97c841685b8cbbc59b909f3e2cf150df590ada4c81452c29737d"
	bobPub      = "0xd75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	market      = "0x0000000000000000000000000000000000000000000000004254432d50455250"
	goldenHash  = "0x22be4ad32b38b3ee480dc8536a51aabe322ae1f81e6aab280bbefff68e802a42"
	goldenTyped = "0x0bd166066504ea2cca49d97485afb4fc123571c97f969d0c4909e1f2a5ddc5ab1ac3640c203ae24331e63f5742d9523e19be591901275065aa2a17c775cccd3a0101"
)

type fakeRelay struct {
	mu    sync.Mutex
	fills []trader.FillInstruction
}

func (r *fakeRelay) PublishFill(_ context.Context, f trader.FillInstruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
	return nil
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	outbox *outbox.Outbox
	relay  *fakeRelay
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	keys := keystore.NewMemoryStore()
	secret, _ := hex.DecodeString(aliceKey)
	_, err := keys.Put("alice", crypto.Secp256k1, secret)
	require.NoError(t, err)
	seed, _ := hex.DecodeString(bobSeed)
	_, err = keys.Put("bob", crypto.Ed25519, seed)
	require.NoError(t, err)

	env := &testEnv{outbox: outbox.New(), relay: &fakeRelay{}}
	env.server = NewServer(Options{
		Codec:  fixedpoint.Default(),
		Keys:   keys,
		Outbox: env.outbox,
		Relay:  env.relay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go env.server.Hub().Run(ctx)

	env.http = httptest.NewServer(env.server.Handler())
	t.Cleanup(func() {
		env.http.Close()
		cancel()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func goldenOrderRequest(maker string) map[string]interface{} {
	return map[string]interface{}{
		"market":     market,
		"maker":      maker,
		"isBuy":      true,
		"price":      "100",
		"quantity":   "1",
		"leverage":   "1",
		"expiration": 1767225600000,
		"salt":       "1",
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var resp HealthResponse
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/health", nil, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int32(9), resp.Scale)
	assert.Equal(t, 0, resp.Outbox["fill"])
}

func TestHashOrder(t *testing.T) {
	env := newTestEnv(t)

	var resp HashResponse
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/orders/hash", goldenOrderRequest(aliceAddr), &resp))
	assert.Equal(t, goldenHash, resp.Hash)
	assert.Len(t, resp.Encoding, 2+2*161)
	assert.Equal(t, "100000000000", resp.Order.Price)

	bad := goldenOrderRequest(aliceAddr)
	bad["price"] = "100.0000000001"
	var errResp ErrorResponse
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/orders/hash", bad, &errResp))
	assert.Equal(t, "invalid order", errResp.Error)
}

func TestSignAndVerifyOrder(t *testing.T) {
	env := newTestEnv(t)

	var signed SignOrderResponse
	body := map[string]interface{}{"keyAlias": "alice", "order": goldenOrderRequest("")}
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/orders/sign", body, &signed))
	assert.Equal(t, goldenHash, signed.Hash)
	assert.Equal(t, goldenTyped, signed.TypedSignature)
	assert.Equal(t, aliceAddr, signed.Order.Maker)
	assert.Equal(t, crypto.Secp256k1, signed.Curve)
	assert.Equal(t, alicePub, signed.PublicKey)

	verify := VerifyOrderRequest{
		Order:          signed.Order,
		TypedSignature: signed.TypedSignature,
		PublicKey:      signed.PublicKey,
		Curve:          crypto.Secp256k1,
		RequireMaker:   true,
	}
	var vr VerifyOrderResponse
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/orders/verify", verify, &vr))
	assert.True(t, vr.Valid)
	assert.Equal(t, goldenHash, vr.Hash)

	// price 100 -> 101 is a normal negative answer, not an error
	verify.Order.Price = "101000000000"
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/orders/verify", verify, &vr))
	assert.False(t, vr.Valid)

	// Format problems are client errors
	verify.Curve = crypto.Ed25519
	verify.PublicKey = bobPub
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/orders/verify", verify, nil))

	verify.Curve = crypto.Secp256k1
	verify.PublicKey = alicePub
	verify.TypedSignature = "0x1234"
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/orders/verify", verify, nil))

	require.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/v1/orders/sign",
		map[string]interface{}{"keyAlias": "nobody", "order": goldenOrderRequest("")}, nil))
}

func TestSetupTradeQueuesAndRelays(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]interface{}{
		"makerKey":     "alice",
		"takerKey":     "bob",
		"makerOrder":   goldenOrderRequest(""),
		"fillQuantity": "0.25",
	}
	var resp TradeResponse
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/trades", body, &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "250000000", resp.Fill.FillQuantity)
	assert.Equal(t, "100000000000", resp.Fill.FillPrice)
	assert.Equal(t, goldenTyped, resp.Fill.MakerSignature)
	assert.Equal(t, bobAddr, resp.Fill.TakerOrder.Maker)
	assert.False(t, resp.Fill.TakerOrder.IsBuy)

	assert.Equal(t, 1, env.outbox.Len())
	env.relay.mu.Lock()
	assert.Len(t, env.relay.fills, 1)
	env.relay.mu.Unlock()

	fill, err := resp.Fill.ToFillInstruction()
	require.NoError(t, err)
	valid, err := fill.Verify()
	require.NoError(t, err)
	assert.True(t, valid)

	body["fillQuantity"] = "2"
	var errResp ErrorResponse
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/trades", body, &errResp))
	assert.Equal(t, "trade setup failed", errResp.Error)
}

func TestCancelAndDrain(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/trades", map[string]interface{}{
		"makerKey":   "alice",
		"takerKey":   "bob",
		"makerOrder": goldenOrderRequest(""),
	}, nil))

	var cancel CancelResponse
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		KeyAlias:    "alice",
		Market:      market,
		OrderHashes: []string{goldenHash},
	}, &cancel))
	assert.Equal(t, aliceAddr, cancel.Cancel.Maker)
	assert.Equal(t, []string{goldenHash}, cancel.Cancel.OrderHashes)

	var drained DrainResponse
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/outbox/drain", nil, &drained))
	require.Len(t, drained.Items, 2)
	assert.Equal(t, outbox.KindCancel, outbox.Classify(drained.Items[0]))
	assert.Equal(t, outbox.KindFill, outbox.Classify(drained.Items[1]))
	assert.Equal(t, 0, env.outbox.Len())

	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/orders/cancel", CancelOrderRequest{
		KeyAlias:    "alice",
		Market:      market,
		OrderHashes: []string{"0x1234"},
	}, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/outbox/drain?maxBytes=-1", nil, nil))
}

func TestKeys(t *testing.T) {
	env := newTestEnv(t)

	var info keystore.Info
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/keys", CreateKeyRequest{Alias: "carol", Curve: crypto.Secp256k1}, &info))
	assert.Equal(t, "carol", info.Alias)
	assert.True(t, strings.HasPrefix(info.Address, "0x"))

	require.Equal(t, http.StatusConflict, env.do(t, "POST", "/api/v1/keys", CreateKeyRequest{Alias: "carol"}, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/keys", CreateKeyRequest{Alias: "bad alias"}, nil))

	var list KeysResponse
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/keys", nil, &list))
	require.Len(t, list.Keys, 3)
	assert.Equal(t, "alice", list.Keys[0].Alias)
	assert.Equal(t, aliceAddr, list.Keys[0].Address)

	// Secrets never leave the service
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), aliceKey)
}

func TestGetAddress(t *testing.T) {
	env := newTestEnv(t)

	var resp AddressResponse
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/addresses/secp256k1/"+alicePub, nil, &resp))
	assert.Equal(t, aliceAddr, resp.Address)

	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/addresses/ed25519/"+bobPub, nil, &resp))
	assert.Equal(t, bobAddr, resp.Address)

	require.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/addresses/bls/"+bobPub, nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/addresses/secp256k1/"+bobPub, nil, nil))
}

func TestFillStream(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	channel := FillChannel(crypto.MustHexToAddress(market))
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{channel}}))

	var ack WSAck
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, []string{channel}, ack.Channels)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/trades", map[string]interface{}{
		"makerKey":   "bob",
		"takerKey":   "alice",
		"makerOrder": goldenOrderRequest(""),
	}, nil))

	var update FillUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "fill", update.Type)
	assert.Equal(t, market, update.Market)
	assert.Equal(t, bobAddr, update.Fill.MakerOrder.Maker)
	assert.Equal(t, aliceAddr, update.Fill.TakerOrder.Maker)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer(Options{Codec: fixedpoint.Default(), Keys: keystore.NewMemoryStore(), Outbox: outbox.New()})
	require.NoError(t, s.Shutdown(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	s := NewServer(Options{Codec: fixedpoint.Default(), Keys: keystore.NewMemoryStore(), Outbox: outbox.New()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	// Shutdown may land before or after Serve begins; both stop the server.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
