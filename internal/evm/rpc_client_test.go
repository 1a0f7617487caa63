package evm

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(req rpcRequest) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_BlockNumber(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		assert.Equal(t, "eth_blockNumber", req.Method)
		return "0x1b4", nil
	})
	defer server.Close()

	n, err := NewHTTPClient(server.URL).BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(436), n)
}

func TestHTTPClient_CallAt(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		assert.Equal(t, "eth_call", req.Method)
		require.Len(t, req.Params, 2)
		msg := req.Params[0].(map[string]interface{})
		assert.Equal(t, to.Hex(), msg["to"])
		assert.Equal(t, "0xdeadbeef", msg["data"])
		assert.Equal(t, "0x64", req.Params[1])
		return "0x0102", nil
	})
	defer server.Close()

	block := uint64(100)
	out, err := NewHTTPClient(server.URL).CallAt(context.Background(), to, hexutil.MustDecode("0xdeadbeef"), &block)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, out)
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		calls.Add(1)
		return nil, &RPCError{Code: -32000, Message: "header not found"}
	})
	defer server.Close()

	_, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).BlockNumber(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "header not found", rpcErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer server.Close()

	n, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ChainID(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		assert.Equal(t, "eth_chainId", req.Method)
		assert.Empty(t, req.Params)
		return "0x2105", nil
	})
	defer server.Close()

	id, err := NewHTTPClient(server.URL).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8453), id)
}

func TestHTTPClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	_, err := client.BlockNumber(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).BlockNumber(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

type fakeCaller struct {
	out   []byte
	err   error
	block *uint64
	data  []byte
}

func (f *fakeCaller) CallAt(_ context.Context, _ common.Address, data []byte, block *uint64) ([]byte, error) {
	f.block = block
	f.data = data
	return f.out, f.err
}

func TestBalanceHelper_BatchBalanceOf(t *testing.T) {
	want := []*big.Int{big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)}
	out, err := BalanceHelperABI.Methods["batchBalanceOf"].Outputs.Pack(want)
	require.NoError(t, err)

	caller := &fakeCaller{out: out}
	helper := NewBalanceHelper(caller, common.HexToAddress("0xb0"))

	block := uint64(42)
	tokens := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}
	got, err := helper.BatchBalanceOf(context.Background(), common.HexToAddress("0xaa"), tokens, &block)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(42), *caller.block)
	assert.Equal(t, BalanceHelperABI.Methods["batchBalanceOf"].ID, caller.data[:4])

	// length mismatch is rejected
	_, err = helper.BatchBalanceOf(context.Background(), common.HexToAddress("0xaa"), tokens[:1], &block)
	assert.Error(t, err)
}

func TestBalanceHelper_BalanceOf(t *testing.T) {
	out, err := BalanceHelperABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(77))
	require.NoError(t, err)

	helper := NewBalanceHelper(&fakeCaller{out: out}, common.HexToAddress("0xb0"))
	bal, err := helper.BalanceOf(context.Background(), common.HexToAddress("0xaa"), common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(77), bal.Int64())

	_, err = NewBalanceHelper(&fakeCaller{err: errors.New("boom")}, common.HexToAddress("0xb0")).
		BalanceOf(context.Background(), common.HexToAddress("0xaa"), common.HexToAddress("0x01"), nil)
	assert.Error(t, err)
}
