package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/money"
	"github.com/mbd888/ledger/internal/retry"
)

const (
	httpClientTimeout = 30 * time.Second
	httpMaxAttempts   = 3
	httpBaseDelay     = 200 * time.Millisecond
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func doWithRetry(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(ctx, httpMaxAttempts, httpBaseDelay, func() error {
		r, err := client.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("server error: %d", r.StatusCode)
		}
		if r.StatusCode >= 400 {
			r.Body.Close()
			return retry.Permanent(fmt.Errorf("client error: %d", r.StatusCode))
		}
		resp = r
		return nil
	})
	return resp, err
}

type apiTransaction struct {
	ID          string         `json:"id"`
	Amount      json.Number    `json:"amount"`
	Currency    string         `json:"currency"`
	Timestamp   string         `json:"timestamp"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

type apiTransactionsResponse struct {
	Transactions []apiTransaction `json:"transactions"`
}

// APILoader fetches transactions via `GET {base_url}/transactions?date=…`.
type APILoader struct{}

// NewAPILoader builds an APILoader.
func NewAPILoader() *APILoader { return &APILoader{} }

// Load fetches and parses the day's transactions.
func (l *APILoader) Load(ctx context.Context, date time.Time, params LoadParams) ([]ExternalTxn, error) {
	url := fmt.Sprintf("%s/transactions?date=%s", strings.TrimSuffix(params.BaseURL, "/"), date.Format("2006-01-02"))
	body, err := fetchJSON(ctx, url, params.AuthToken)
	if err != nil {
		return nil, err
	}

	var resp apiTransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "decode api transactions response", err)
	}

	txns := make([]ExternalTxn, 0, len(resp.Transactions))
	for _, t := range resp.Transactions {
		txn, err := parseAPITransaction(t)
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, "invalid api transaction data", err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseAPITransaction(t apiTransaction) (ExternalTxn, error) {
	amount, ok := money.ParsePositive(t.Amount.String())
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid amount %q", t.Amount.String())
	}
	timestamp, ok := parseFlexibleTime(t.Timestamp)
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid timestamp %q", t.Timestamp)
	}

	meta := Metadata{}
	for k, v := range t.Metadata {
		meta[k] = v
	}

	return ExternalTxn{
		TxnID:       t.ID,
		Amount:      amount,
		Currency:    strings.ToUpper(t.Currency),
		Timestamp:   timestamp,
		Description: t.Description,
		Metadata:    meta,
	}, nil
}

type settlement struct {
	SettlementID     string      `json:"settlement_id"`
	NetAmount        json.Number `json:"net_amount"`
	Currency         string      `json:"currency"`
	SettledAt        string      `json:"settled_at"`
	Type             string      `json:"type"`
	TransactionCount int         `json:"transaction_count"`
	Fees             json.Number `json:"fees"`
}

type settlementsResponse struct {
	Settlements []settlement `json:"settlements"`
}

// PaymentProcessorLoader fetches settlements via
// `GET {base_url}/settlements?settlement_date=…&status=settled`.
type PaymentProcessorLoader struct{}

// NewPaymentProcessorLoader builds a PaymentProcessorLoader.
func NewPaymentProcessorLoader() *PaymentProcessorLoader { return &PaymentProcessorLoader{} }

// Load fetches and parses the day's settled settlements, one ExternalTxn
// per settlement.
func (l *PaymentProcessorLoader) Load(ctx context.Context, date time.Time, params LoadParams) ([]ExternalTxn, error) {
	url := fmt.Sprintf("%s/settlements?settlement_date=%s&status=settled",
		strings.TrimSuffix(params.BaseURL, "/"), date.Format("2006-01-02"))
	body, err := fetchJSON(ctx, url, params.AuthToken)
	if err != nil {
		return nil, err
	}

	var resp settlementsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "decode settlements response", err)
	}

	txns := make([]ExternalTxn, 0, len(resp.Settlements))
	for _, s := range resp.Settlements {
		txn, err := parseSettlement(s)
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, "invalid settlement data", err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseSettlement(s settlement) (ExternalTxn, error) {
	amount, ok := money.ParsePositive(s.NetAmount.String())
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid net_amount %q", s.NetAmount.String())
	}
	timestamp, ok := parseFlexibleTime(s.SettledAt)
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid settled_at %q", s.SettledAt)
	}

	return ExternalTxn{
		TxnID:       s.SettlementID,
		Amount:      amount,
		Currency:    strings.ToUpper(s.Currency),
		Timestamp:   timestamp,
		Description: fmt.Sprintf("Settlement for %d transactions", s.TransactionCount),
		Metadata: Metadata{
			"settlement_type":   s.Type,
			"transaction_count": s.TransactionCount,
			"fees":              s.Fees.String(),
		},
	}, nil
}

func fetchJSON(ctx context.Context, url, authToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "build request", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := newHTTPClient()
	resp, err := doWithRetry(ctx, client, req)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "fetch "+url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "read response body", err)
	}
	return body, nil
}
