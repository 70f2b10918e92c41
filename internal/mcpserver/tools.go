package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the ledger MCP server. Descriptions are what the
// LLM reads to decide which tool to use.

var ToolCreateAccount = mcp.NewTool("create_account",
	mcp.WithDescription(
		"Open a new ledger account with a zero starting balance. "+
			"Returns the new account's ID, which is needed for balance checks and transfers."),
	mcp.WithString("currency",
		mcp.Required(),
		mcp.Description("ISO 4217 currency code for the account, e.g. 'USD'")),
	mcp.WithString("type",
		mcp.Description("Account type, e.g. 'customer' or 'internal'. Defaults to 'customer'.")),
)

var ToolGetBalance = mcp.NewTool("get_balance",
	mcp.WithDescription(
		"Get an account's current balance, derived from the ledger's event log. "+
			"Returns the available amount and currency."),
	mcp.WithString("account_id",
		mcp.Required(),
		mcp.Description("The account's UUID")),
)

var ToolPostTransfer = mcp.NewTool("post_transfer",
	mcp.WithDescription(
		"Move funds from one account to another. Fails if the source account has "+
			"insufficient funds, unless overdraft is allowed on the server. "+
			"Produces a paired DEBIT/CREDIT event in the ledger."),
	mcp.WithString("source_account_id",
		mcp.Required(),
		mcp.Description("UUID of the account to debit")),
	mcp.WithString("destination_account_id",
		mcp.Required(),
		mcp.Description("UUID of the account to credit")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount to transfer as a decimal string, e.g. '100.50'")),
	mcp.WithString("currency",
		mcp.Required(),
		mcp.Description("ISO 4217 currency code, must match both accounts' currency")),
)

var ToolListEvents = mcp.NewTool("list_events",
	mcp.WithDescription(
		"List recent immutable ledger events, optionally scoped to one account. "+
			"Each transfer produces a paired DEBIT and CREDIT event."),
	mcp.WithString("account_id",
		mcp.Description("Restrict results to events touching this account UUID")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 50)")),
)

var ToolRunReconciliation = mcp.NewTool("run_reconciliation",
	mcp.WithDescription(
		"Trigger a reconciliation run matching ledger transactions against an "+
			"external source (bank statement, payment processor, etc.) for a given date. "+
			"Runs synchronously and returns the completed job's outcome."),
	mcp.WithString("date",
		mcp.Required(),
		mcp.Description("Date to reconcile, YYYY-MM-DD")),
	mcp.WithString("source",
		mcp.Required(),
		mcp.Description("External source to reconcile against"),
		mcp.Enum("bank_csv", "csv", "api", "payment_processor")),
	mcp.WithString("file_path",
		mcp.Description("Path to the external CSV/statement file (required for csv and bank_csv sources)")),
	mcp.WithString("base_url",
		mcp.Description("Base URL of the external API (required for api and payment_processor sources)")),
	mcp.WithString("auth_token",
		mcp.Description("Bearer token for the external API, if required")),
)

var ToolGetReconStatus = mcp.NewTool("get_recon_status",
	mcp.WithDescription(
		"Get the status of reconciliation job(s) for a given date, optionally "+
			"filtered by source."),
	mcp.WithString("date",
		mcp.Required(),
		mcp.Description("Date the job ran against, YYYY-MM-DD")),
	mcp.WithString("source",
		mcp.Description("Restrict results to this source")),
)

var ToolGetReconSummary = mcp.NewTool("get_recon_summary",
	mcp.WithDescription(
		"Get the aggregate outcome of a completed reconciliation job: matched and "+
			"unmatched counts, average match score, and total amount difference."),
	mcp.WithString("date",
		mcp.Required(),
		mcp.Description("Date the job ran against, YYYY-MM-DD")),
	mcp.WithString("source",
		mcp.Required(),
		mcp.Description("Source the job ran against")),
)
