package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the ledger service's
// REST API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	Token  string // optional bearer token
}

// LedgerClient is a pure HTTP client for the ledger/reconciliation REST API.
type LedgerClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewLedgerClient creates a new client for the ledger service's API.
func NewLedgerClient(cfg Config) *LedgerClient {
	return &LedgerClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (c *LedgerClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CreateAccount opens a new account.
func (c *LedgerClient) CreateAccount(ctx context.Context, currency, accountType string) (json.RawMessage, error) {
	body := map[string]string{"currency": currency, "type": accountType}
	return c.doRequest(ctx, http.MethodPost, "/ledger/account/", nil, body)
}

// GetBalance returns an account's current balance.
func (c *LedgerClient) GetBalance(ctx context.Context, accountID string) (json.RawMessage, error) {
	path := "/ledger/account/" + accountID + "/balance"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// PostTransfer moves funds between two accounts.
func (c *LedgerClient) PostTransfer(ctx context.Context, sourceID, destID, amount, currency string) (json.RawMessage, error) {
	body := map[string]string{
		"source_account_id":      sourceID,
		"destination_account_id": destID,
		"amount":                 amount,
		"currency":               currency,
	}
	return c.doRequest(ctx, http.MethodPost, "/ledger/transfer/", nil, body)
}

// ListEvents returns recent ledger events, optionally scoped to an account.
func (c *LedgerClient) ListEvents(ctx context.Context, accountID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if accountID != "" {
		q.Set("account_id", accountID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/ledger/events/", q, nil)
}

// RunReconciliation triggers a synchronous reconciliation pass.
func (c *LedgerClient) RunReconciliation(ctx context.Context, date, source, filePath, baseURL, authToken string) (json.RawMessage, error) {
	body := map[string]string{"date": date, "source": source}
	if filePath != "" {
		body["file_path"] = filePath
	}
	if baseURL != "" {
		body["base_url"] = baseURL
	}
	if authToken != "" {
		body["auth_token"] = authToken
	}
	return c.doRequest(ctx, http.MethodPost, "/recon/run", nil, body)
}

// GetReconStatus returns the job rows for a date, optionally filtered by source.
func (c *LedgerClient) GetReconStatus(ctx context.Context, date, source string) (json.RawMessage, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	return c.doRequest(ctx, http.MethodGet, "/recon/status/"+date, q, nil)
}

// GetReconSummary returns the aggregate outcome for a (date, source) job run.
func (c *LedgerClient) GetReconSummary(ctx context.Context, date, source string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/recon/summary/"+date+"/"+source, nil, nil)
}
