package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{APIURL: ts.URL, Token: "test-token"}
	client := NewLedgerClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"account_id":"a1","available":"0","currency":"USD"}`))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL, Token: "sk_secret123"})
	_, err := client.GetBalance(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_secret123", gotAuth)
}

func TestClient_DoRequest_NoTokenNoAuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.GetBalance(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "account not found"})
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.GetBalance(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "account not found")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.GetBalance(context.Background(), "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewLedgerClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetBalance(context.Background(), "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	client := NewLedgerClient(Config{APIURL: "http://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetBalance(ctx, "a1")
	require.Error(t, err)
}

func TestClient_PostTransfer_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "acc-1", m["source_account_id"])
		assert.Equal(t, "acc-2", m["destination_account_id"])
		assert.Equal(t, "100.50", m["amount"])
		assert.Equal(t, "USD", m["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction_id": "tx-1"})
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.PostTransfer(context.Background(), "acc-1", "acc-2", "100.50", "USD")
	require.NoError(t, err)
}

func TestClient_ListEvents_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acc-1", r.URL.Query().Get("account_id"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.ListEvents(context.Background(), "acc-1", 10)
	require.NoError(t, err)
}

func TestClient_ListEvents_ZeroLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.ListEvents(context.Background(), "", 0)
	require.NoError(t, err)
}

func TestClient_GetReconStatus_OptionalSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recon/status/2026-03-01", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("source"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewLedgerClient(Config{APIURL: ts.URL})
	_, err := client.GetReconStatus(context.Background(), "2026-03-01", "")
	require.NoError(t, err)
}

// ============================================================
// Handler: create_account
// ============================================================

func TestHandleCreateAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/account/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "USD", m["currency"])
		_ = json.NewEncoder(w).Encode(map[string]any{"account_id": "acc-1", "currency": "USD"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateAccount(context.Background(), makeRequest(map[string]any{
		"currency": "USD",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "acc-1")
}

func TestHandleCreateAccount_MissingCurrency(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{}))
	result, err := h.HandleCreateAccount(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "currency is required")
}

func TestHandleCreateAccount_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/account/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "invalid currency"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCreateAccount(context.Background(), makeRequest(map[string]any{
		"currency": "XXX",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid currency")
}

// ============================================================
// Handler: get_balance
// ============================================================

func TestHandleGetBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/account/acc-1/balance", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"account_id": "acc-1", "available": "42.500000", "currency": "USD", "as_of": "2026-03-01T00:00:00Z",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetBalance(context.Background(), makeRequest(map[string]any{
		"account_id": "acc-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "acc-1")
	assert.Contains(t, text, "42.500000")
	assert.Contains(t, text, "USD")
}

func TestHandleGetBalance_MissingAccountID(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{}))
	result, err := h.HandleGetBalance(context.Background(), makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "account_id is required")
}

func TestHandleGetBalance_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/account/missing/balance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "account not found"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetBalance(context.Background(), makeRequest(map[string]any{
		"account_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "account not found")
}

// ============================================================
// Handler: post_transfer
// ============================================================

func TestHandlePostTransfer_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/transfer/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction_id": "tx-99"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandlePostTransfer(context.Background(), makeRequest(map[string]any{
		"source_account_id":      "acc-1",
		"destination_account_id": "acc-2",
		"amount":                 "10.00",
		"currency":               "USD",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "tx-99")
}

func TestHandlePostTransfer_Declined(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/transfer/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "errors": []string{"Insufficient funds"}})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandlePostTransfer(context.Background(), makeRequest(map[string]any{
		"source_account_id":      "acc-1",
		"destination_account_id": "acc-2",
		"amount":                 "999999.00",
		"currency":               "USD",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "declined")
}

func TestHandlePostTransfer_MissingFields(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{}))
	result, err := h.HandlePostTransfer(context.Background(), makeRequest(map[string]any{
		"source_account_id": "acc-1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "required")
}

// ============================================================
// Handler: list_events
// ============================================================

func TestHandleListEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/events/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"event_type": "DEBIT", "amount": "10.00", "currency": "USD", "account_id": "acc-1", "transaction_id": "tx-1"},
				{"event_type": "CREDIT", "amount": "10.00", "currency": "USD", "account_id": "acc-2", "transaction_id": "tx-1"},
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListEvents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 event(s)")
	assert.Contains(t, text, "DEBIT")
	assert.Contains(t, text, "CREDIT")
}

func TestHandleListEvents_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/events/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"events": []map[string]any{}})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListEvents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No events found")
}

// ============================================================
// Handler: run_reconciliation / recon status / recon summary
// ============================================================

func TestHandleRunReconciliation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recon/run", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "2026-03-01", m["date"])
		assert.Equal(t, "bank_csv", m["source"])
		assert.Equal(t, "/data/bank.csv", m["file_path"])
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": "job-1", "status": "COMPLETED"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleRunReconciliation(context.Background(), makeRequest(map[string]any{
		"date":      "2026-03-01",
		"source":    "bank_csv",
		"file_path": "/data/bank.csv",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "job-1")
}

func TestHandleRunReconciliation_MissingFields(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{}))
	result, err := h.HandleRunReconciliation(context.Background(), makeRequest(map[string]any{
		"date": "2026-03-01",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "date and source are required")
}

func TestHandleGetReconStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recon/status/2026-03-01", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "job-1", "status": "COMPLETED"}})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetReconStatus(context.Background(), makeRequest(map[string]any{
		"date": "2026-03-01",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "COMPLETED")
}

func TestHandleGetReconSummary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recon/summary/2026-03-01/bank_csv", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"matched_count": 8.0, "unmatched_count": 2.0, "avg_match_score": 0.93, "total_amount_difference": 4.50,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetReconSummary(context.Background(), makeRequest(map[string]any{
		"date":   "2026-03-01",
		"source": "bank_csv",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Matched: 8")
	assert.Contains(t, text, "Unmatched: 2")
}

func TestHandleGetReconSummary_MissingFields(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{}))
	result, err := h.HandleGetReconSummary(context.Background(), makeRequest(map[string]any{
		"date": "2026-03-01",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// Formatting & parsing unit tests
// ============================================================

func TestFormatJSON_ValidJSON(t *testing.T) {
	result := formatJSON(json.RawMessage(`{"a":1,"b":"two"}`))
	assert.Contains(t, result, "\"a\": 1")
	assert.Contains(t, result, "\"b\": \"two\"")
}

func TestFormatJSON_InvalidJSON(t *testing.T) {
	result := formatJSON(json.RawMessage(`not json`))
	assert.Equal(t, "not json", result)
}

func TestGetString_Fallback(t *testing.T) {
	m := map[string]any{"foo": "bar"}
	assert.Equal(t, "bar", getString(m, "missing", "foo"))
	assert.Equal(t, "", getString(m, "missing1", "missing2"))
}

func TestGetFloat_Fallback(t *testing.T) {
	m := map[string]any{"score": 95.5}
	v, ok := getFloat(m, "missing", "score")
	assert.True(t, ok)
	assert.Equal(t, 95.5, v)

	_, ok = getFloat(m, "missing1", "missing2")
	assert.False(t, ok)
}

// ============================================================
// Edge cases: handler never returns Go error
// ============================================================

func TestHandlers_NeverReturnGoError(t *testing.T) {
	h := NewHandlers(NewLedgerClient(Config{APIURL: "http://127.0.0.1:1"}))

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"GetBalance", func() (*mcp.CallToolResult, error) {
			return h.HandleGetBalance(context.Background(), makeRequest(map[string]any{"account_id": "a1"}))
		}},
		{"ListEvents", func() (*mcp.CallToolResult, error) {
			return h.HandleListEvents(context.Background(), makeRequest(nil))
		}},
		{"CreateAccount", func() (*mcp.CallToolResult, error) {
			return h.HandleCreateAccount(context.Background(), makeRequest(map[string]any{"currency": "USD"}))
		}},
		{"PostTransfer", func() (*mcp.CallToolResult, error) {
			return h.HandlePostTransfer(context.Background(), makeRequest(map[string]any{
				"source_account_id": "a1", "destination_account_id": "a2", "amount": "1.00", "currency": "USD",
			}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			assert.NoError(t, err, "handler should never return Go error")
			assert.NotNil(t, result, "handler should always return a result")
			assert.True(t, result.IsError, "unreachable server should produce isError result")
		})
	}
}

// ============================================================
// Server wiring test
// ============================================================

func TestNewMCPServer_RegistersAllTools(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
