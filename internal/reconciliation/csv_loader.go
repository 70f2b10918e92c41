package reconciliation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/money"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseFlexibleTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CSVLoader reads the generic `txn_id, amount, currency, timestamp[,
// description]` CSV shape.
type CSVLoader struct {
	requiredColumns []string
}

// NewCSVLoader builds a CSVLoader for the generic transaction export
// format.
func NewCSVLoader() *CSVLoader {
	return &CSVLoader{requiredColumns: []string{"txn_id", "amount", "currency", "timestamp"}}
}

// Load reads params.FilePath and parses every row into an ExternalTxn.
func (l *CSVLoader) Load(ctx context.Context, date time.Time, params LoadParams) ([]ExternalTxn, error) {
	f, err := os.Open(params.FilePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "open csv file", err)
	}
	defer f.Close()

	return l.parse(f, l.parseRow)
}

type rowParser func(header []string, row []string, required map[string]bool) (ExternalTxn, error)

func (l *CSVLoader) parse(f *os.File, parseRow rowParser) ([]ExternalTxn, error) {
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "read csv header", err)
	}

	required := make(map[string]bool, len(l.requiredColumns))
	for _, col := range l.requiredColumns {
		required[col] = true
	}
	if missing := missingColumns(header, l.requiredColumns); len(missing) > 0 {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("missing required columns: %v", missing))
	}

	var txns []ExternalTxn
	rowNum := 2
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("error parsing row %d", rowNum), err)
		}
		txn, err := parseRow(header, row, required)
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("error parsing row %d", rowNum), err)
		}
		txns = append(txns, txn)
		rowNum++
	}
	return txns, nil
}

func missingColumns(header, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func cell(header, row []string, name string) string {
	i := columnIndex(header, name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (l *CSVLoader) parseRow(header []string, row []string, required map[string]bool) (ExternalTxn, error) {
	amount, ok := money.ParsePositive(cell(header, row, "amount"))
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid amount %q", cell(header, row, "amount"))
	}
	timestamp, ok := parseFlexibleTime(cell(header, row, "timestamp"))
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid timestamp %q", cell(header, row, "timestamp"))
	}

	meta := Metadata{}
	for i, col := range header {
		if required[col] || col == "description" {
			continue
		}
		if i < len(row) && strings.TrimSpace(row[i]) != "" {
			meta[col] = strings.TrimSpace(row[i])
		}
	}

	return ExternalTxn{
		TxnID:       cell(header, row, "txn_id"),
		Amount:      amount,
		Currency:    strings.ToUpper(cell(header, row, "currency")),
		Timestamp:   timestamp,
		Description: cell(header, row, "description"),
		Metadata:    meta,
	}, nil
}

// BankCSVLoader reads bank-statement exports, where amounts may be
// negative (debits) and the timestamp column is named "date".
type BankCSVLoader struct {
	csv *CSVLoader
}

// NewBankCSVLoader builds a loader for the bank-statement CSV shape.
func NewBankCSVLoader() *BankCSVLoader {
	return &BankCSVLoader{csv: &CSVLoader{
		requiredColumns: []string{"transaction_id", "amount", "currency", "date", "description"},
	}}
}

// Load reads params.FilePath using the bank CSV column mapping.
func (l *BankCSVLoader) Load(ctx context.Context, date time.Time, params LoadParams) ([]ExternalTxn, error) {
	f, err := os.Open(params.FilePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceIO, "open bank csv file", err)
	}
	defer f.Close()

	return l.csv.parse(f, l.parseRow)
}

func (l *BankCSVLoader) parseRow(header []string, row []string, required map[string]bool) (ExternalTxn, error) {
	amountStr := cell(header, row, "amount")
	amount, ok := money.Parse(amountStr)
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	amount = money.AbsDiff(amount, money.Zero())

	timestamp, ok := parseFlexibleTime(cell(header, row, "date"))
	if !ok {
		return ExternalTxn{}, fmt.Errorf("invalid date %q", cell(header, row, "date"))
	}

	return ExternalTxn{
		TxnID:       cell(header, row, "transaction_id"),
		Amount:      amount,
		Currency:    strings.ToUpper(cell(header, row, "currency")),
		Timestamp:   timestamp,
		Description: cell(header, row, "description"),
		Metadata: Metadata{
			"source_format":   "bank_csv",
			"original_amount": amountStr,
		},
	}, nil
}
