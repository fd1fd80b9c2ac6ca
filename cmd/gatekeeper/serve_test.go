package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/pumppilot/gatekeeper/adapters/events"
	"github.com/pumppilot/gatekeeper/config"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

// walletLogin runs the challenge handshake, signing with signer on behalf of address
func walletLogin(t *testing.T, handler http.Handler, address string, signer []byte) (int, map[string]interface{}) {
	t.Helper()
	key, err := crypto.ToECDSA(signer)
	require.NoError(t, err)

	code, challenge := postJSON(t, handler, "/auth/challenge", gin.H{"address": address})
	require.Equal(t, http.StatusOK, code)
	message := challenge["message"].(string)

	sig, err := eth.SignPersonal(message, key)
	require.NoError(t, err)

	return postJSON(t, handler, "/auth/verify", gin.H{
		"address":   address,
		"message":   message,
		"signature": hexutil.Encode(sig),
	})
}

func TestRedisClients(t *testing.T) {
	pool := newRedisClients()

	a1, err := pool.get("redis://localhost:6379/0")
	require.NoError(t, err)
	a2, err := pool.get("redis://localhost:6379/0")
	require.NoError(t, err)
	b, err := pool.get("redis://localhost:6380/1")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, "localhost:6380", b.Options().Addr)
	assert.Equal(t, 1, b.Options().DB)

	_, err = pool.get("not a url")
	assert.Error(t, err)

	// The event publisher closes its own client before the pool does
	require.NoError(t, b.Close())
	assert.NoError(t, pool.Close())
}

func TestNewServer_MemoryStore(t *testing.T) {
	cfg := testConfig(t)

	srv, err := newServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, srv.Close()) }()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	code, tokens := walletLogin(t, srv.handler, address, crypto.FromECDSA(key))
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, tokens["access_token"])
}

func TestNewServer_EventsOnTheirOwnRedis(t *testing.T) {
	storeRedis := miniredis.RunT(t)
	eventsRedis := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreDriverRedis
	cfg.Store.RedisURL = "redis://" + storeRedis.Addr()
	cfg.Events.Enabled = true
	cfg.Events.RedisURL = "redis://" + eventsRedis.Addr()

	srv, err := newServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, srv.Close()) }()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	code, _ := postJSON(t, srv.handler, "/auth/challenge", gin.H{"address": address})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, storeRedis.Exists("gatekeeper:challenge:"+address))
	assert.False(t, eventsRedis.Exists("gatekeeper:challenge:"+address))

	code, _ = walletLogin(t, srv.handler, address, crypto.FromECDSA(key))
	require.Equal(t, http.StatusOK, code)

	assert.True(t, eventsRedis.Exists(events.TopicSessionIssued))
	assert.False(t, storeRedis.Exists(events.TopicSessionIssued))
}

func TestNewServer_EventsShareStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreDriverRedis
	cfg.Store.RedisURL = "redis://" + mr.Addr()
	cfg.Events.Enabled = true

	srv, err := newServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, srv.Close()) }()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	code, _ := walletLogin(t, srv.handler, crypto.PubkeyToAddress(key.PublicKey).Hex(), crypto.FromECDSA(key))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, mr.Exists(events.TopicSessionIssued))
}

// rpcRecorder answers eth_getCode with empty code, as for an account with no contract
type rpcRecorder struct {
	mu      sync.Mutex
	methods []string
}

func (r *rpcRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var call struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(req.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.methods = append(r.methods, call.Method)
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      call.ID,
		"result":  "0x",
	})
}

func (r *rpcRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.methods...)
}

func TestNewServer_ChainRPC(t *testing.T) {
	rpc := &rpcRecorder{}
	node := httptest.NewServer(rpc)
	defer node.Close()

	cfg := testConfig(t)
	cfg.Chain.RPCURL = node.URL

	srv, err := newServer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, srv.Close()) }()

	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(owner.PublicKey).Hex()

	// A matching EOA signature never reaches the node
	code, _ := walletLogin(t, srv.handler, address, crypto.FromECDSA(owner))
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, rpc.calls())

	// A foreign signature falls back to the contract wallet check
	code, body := walletLogin(t, srv.handler, address, crypto.FromECDSA(other))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "authentication failed", body["error"])
	assert.Equal(t, []string{"eth_getCode"}, rpc.calls())
}

func TestNewServer_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreDriverRedis
	cfg.Store.RedisURL = "not a url"

	_, err := newServer(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
