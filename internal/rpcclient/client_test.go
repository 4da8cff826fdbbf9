package rpcclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
		}
		if req.Method != "ledger_getInfo" {
			t.Errorf("method = %q", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  map[string]uint64{"fee_base": 7},
			"id":      req.ID,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var result struct {
		FeeBase uint64 `json:"fee_base"`
	}
	if err := c.Call("ledger_getInfo", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.FeeBase != 7 {
		t.Errorf("fee_base = %d, want 7", result.FeeBase)
	}
}

func TestClient_Call_ParamsForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		params, ok := req.Params.(map[string]interface{})
		if !ok || params["id"] != float64(42) {
			t.Errorf("params = %#v, want id 42", req.Params)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "result": true, "id": req.ID})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Call("utxo_get", map[string]uint64{"id": 42}, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestClient_Call_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"error":   map[string]interface{}{"code": -32001, "message": "batch rejected"},
			"id":      1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call("ledger_submitBatch", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32001 || rpcErr.Message != "batch rejected" {
		t.Errorf("rpc error = %+v", rpcErr)
	}
}

func TestClient_Call_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if err := c.Call("ledger_getInfo", nil, nil); err == nil {
		t.Error("Call against a dead endpoint should fail")
	}
}
