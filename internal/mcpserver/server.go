// Package mcpserver exposes the ledger service's REST API as MCP tools,
// so an LLM client can open accounts, move funds, and trigger
// reconciliation runs through a stdio MCP server.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all ledger tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("ledger", "1.0.0")
	client := NewLedgerClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCreateAccount, h.HandleCreateAccount)
	s.AddTool(ToolGetBalance, h.HandleGetBalance)
	s.AddTool(ToolPostTransfer, h.HandlePostTransfer)
	s.AddTool(ToolListEvents, h.HandleListEvents)
	s.AddTool(ToolRunReconciliation, h.HandleRunReconciliation)
	s.AddTool(ToolGetReconStatus, h.HandleGetReconStatus)
	s.AddTool(ToolGetReconSummary, h.HandleGetReconSummary)

	return s
}
