package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handle func(req rpcRequest) map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := handle(req)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getBalance" {
			t.Errorf("expected method getBalance, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "addr1" {
			t.Errorf("unexpected params: %v", req.Params)
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["commitment"] != CommitmentConfirmed {
			t.Errorf("expected confirmed commitment, got %v", cfg["commitment"])
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value":   uint64(2_500_000_000),
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	balance, err := client.GetBalance(context.Background(), "addr1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 2_500_000_000 {
		t.Errorf("expected 2500000000 lamports, got %d", balance)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getLatestBlockhash" {
			t.Errorf("expected method getLatestBlockhash, got %s", req.Method)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
					"lastValidBlockHeight": uint64(3090),
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithCommitment(CommitmentFinalized))

	bh, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Hash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected blockhash %s", bh.Hash)
	}
	if bh.LastValidBlockHeight != 3090 {
		t.Errorf("expected lastValidBlockHeight 3090, got %d", bh.LastValidBlockHeight)
	}
}

func TestHTTPClient_GetLatestBlockhash_Empty(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{"result": map[string]interface{}{"value": nil}}
	})
	defer server.Close()

	if _, err := NewHTTPClient(server.URL).GetLatestBlockhash(context.Background()); err == nil {
		t.Fatal("expected error for empty blockhash")
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		if req.Params[0] != "AQID" {
			t.Errorf("unexpected payload %v", req.Params[0])
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		if _, ok := cfg["maxRetries"]; ok {
			t.Errorf("maxRetries must be left to the node, got %v", cfg["maxRetries"])
		}
		return map[string]interface{}{"result": "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"}
	})
	defer server.Close()

	sig, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), "AQID")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if !strings.HasPrefix(sig, "5VERv8") {
		t.Errorf("unexpected signature %s", sig)
	}
}

func TestHTTPClient_SendTransaction_NotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := client.SendTransaction(context.Background(), "AQID"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_SendTransaction_SimulationLogs(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1",
				"data": map[string]interface{}{
					"logs": []string{
						"Program 11111111111111111111111111111111 invoke [1]",
						"Transfer: insufficient lamports 1000, need 5000",
					},
				},
			},
		}
	})
	defer server.Close()

	_, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), "AQID")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}
	if !strings.Contains(err.Error(), "insufficient lamports") {
		t.Errorf("expected logs in error message, got %q", err.Error())
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": uint64(999)},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	balance, err := client.GetBalance(context.Background(), "addr1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 999 {
		t.Errorf("expected balance 999, got %d", balance)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		attempts.Add(1)
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid param: WrongSize",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.GetBalance(context.Background(), "short")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("expected code -32602, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetBalance(ctx, "addr1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestNewHTTPClient_DefaultEndpoint(t *testing.T) {
	if got := NewHTTPClient("").Endpoint(); got != DefaultEndpoint {
		t.Errorf("expected %s, got %s", DefaultEndpoint, got)
	}
}
