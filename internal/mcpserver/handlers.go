package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *LedgerClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *LedgerClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCreateAccount opens a new account.
func (h *Handlers) HandleCreateAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	currency := req.GetString("currency", "")
	if currency == "" {
		return mcp.NewToolResultError("currency is required"), nil
	}
	accountType := req.GetString("type", "customer")

	raw, err := h.client.CreateAccount(ctx, currency, accountType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create account: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleGetBalance returns an account's current balance.
func (h *Handlers) HandleGetBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	if accountID == "" {
		return mcp.NewToolResultError("account_id is required"), nil
	}

	raw, err := h.client.GetBalance(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	text, err := formatBalance(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandlePostTransfer moves funds between two accounts.
func (h *Handlers) HandlePostTransfer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID := req.GetString("source_account_id", "")
	destID := req.GetString("destination_account_id", "")
	amount := req.GetString("amount", "")
	currency := req.GetString("currency", "")
	if sourceID == "" || destID == "" || amount == "" || currency == "" {
		return mcp.NewToolResultError("source_account_id, destination_account_id, amount, and currency are all required"), nil
	}

	raw, err := h.client.PostTransfer(ctx, sourceID, destID, amount, currency)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Transfer failed: %v", err)), nil
	}

	text, err := formatTransferResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transfer result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListEvents lists recent ledger events.
func (h *Handlers) HandleListEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	limit := req.GetInt("limit", 50)

	raw, err := h.client.ListEvents(ctx, accountID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	text, err := formatEventList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse events: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleRunReconciliation triggers a synchronous reconciliation run.
func (h *Handlers) HandleRunReconciliation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := req.GetString("date", "")
	source := req.GetString("source", "")
	if date == "" || source == "" {
		return mcp.NewToolResultError("date and source are required"), nil
	}
	filePath := req.GetString("file_path", "")
	baseURL := req.GetString("base_url", "")
	authToken := req.GetString("auth_token", "")

	raw, err := h.client.RunReconciliation(ctx, date, source, filePath, baseURL, authToken)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reconciliation run failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleGetReconStatus returns job status rows for a date.
func (h *Handlers) HandleGetReconStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := req.GetString("date", "")
	if date == "" {
		return mcp.NewToolResultError("date is required"), nil
	}
	source := req.GetString("source", "")

	raw, err := h.client.GetReconStatus(ctx, date, source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get recon status: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleGetReconSummary returns the aggregate outcome for a (date, source) job.
func (h *Handlers) HandleGetReconSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := req.GetString("date", "")
	source := req.GetString("source", "")
	if date == "" || source == "" {
		return mcp.NewToolResultError("date and source are required"), nil
	}

	raw, err := h.client.GetReconSummary(ctx, date, source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get recon summary: %v", err)), nil
	}

	text, err := formatReconSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse recon summary: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatBalance(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	return fmt.Sprintf("Account %s balance: %s %s (as of %s)",
		getString(m, "account_id"),
		getString(m, "available"),
		getString(m, "currency"),
		getString(m, "as_of")), nil
}

func formatTransferResult(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	if success, ok := m["success"].(bool); ok && !success {
		return fmt.Sprintf("Transfer declined: %v", m["errors"]), nil
	}
	return fmt.Sprintf("Transfer settled. Transaction ID: %s", getString(m, "transaction_id")), nil
}

func formatEventList(raw json.RawMessage) (string, error) {
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Events) == 0 {
		return "No events found.", nil
	}

	var sb bytes.Buffer
	fmt.Fprintf(&sb, "Found %d event(s):\n\n", len(resp.Events))
	for i, e := range resp.Events {
		fmt.Fprintf(&sb, "%d. %s %s %s %s (txn %s)\n", i+1,
			getString(e, "event_type"), getString(e, "amount"), getString(e, "currency"),
			getString(e, "account_id"), getString(e, "transaction_id"))
	}
	return sb.String(), nil
}

func formatReconSummary(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	matched, _ := getFloat(m, "matched_count")
	unmatched, _ := getFloat(m, "unmatched_count")
	avgScore, _ := getFloat(m, "avg_match_score")
	totalDiff, _ := getFloat(m, "total_amount_difference")

	return fmt.Sprintf(
		"Reconciliation summary:\n  Matched: %.0f\n  Unmatched: %.0f\n  Avg match score: %.3f\n  Total amount difference: %.2f",
		matched, unmatched, avgScore, totalDiff), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
