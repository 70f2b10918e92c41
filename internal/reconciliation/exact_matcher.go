package reconciliation

import (
	"fmt"
	"math/big"
	"time"
)

// ExactMatcher matches by cross-reference id, then by exact
// amount+currency within the timestamp tolerance.
type ExactMatcher struct {
	timestampToleranceSeconds float64
}

// NewExactMatcher builds an ExactMatcher using the given timestamp
// tolerance (seconds).
func NewExactMatcher(timestampToleranceSeconds float64) *ExactMatcher {
	return &ExactMatcher{timestampToleranceSeconds: timestampToleranceSeconds}
}

// Match runs the exact-match cascade against a currency-filtered candidate
// list.
func (m *ExactMatcher) Match(ext ExternalTxn, candidates []LedgerTxn) MatchResult {
	if lt := m.findCrossReferenceMatch(ext, candidates); lt != nil {
		return m.validate(ext, lt)
	}

	matches := m.findExactAmountMatches(ext, candidates)
	switch len(matches) {
	case 1:
		return m.validate(ext, &matches[0])
	case 0:
		return m.result(ext, nil, false, 0, "No exact match found")
	default:
		return m.result(ext, nil, false, 0, "Multiple exact amount matches found")
	}
}

func (m *ExactMatcher) findCrossReferenceMatch(ext ExternalTxn, candidates []LedgerTxn) *LedgerTxn {
	ledgerRef, hasLedgerRef := ext.Metadata["ledger_txn_id"]
	for i := range candidates {
		lt := &candidates[i]
		if v, ok := lt.Metadata["external_txn_id"]; ok {
			if s, ok := v.(string); ok && s == ext.TxnID {
				return lt
			}
		}
		if hasLedgerRef {
			if s, ok := ledgerRef.(string); ok && s == lt.ID.String() {
				return lt
			}
		}
	}
	return nil
}

func (m *ExactMatcher) findExactAmountMatches(ext ExternalTxn, candidates []LedgerTxn) []LedgerTxn {
	tolerance := time.Duration(m.timestampToleranceSeconds * float64(time.Second))
	var matches []LedgerTxn
	for _, lt := range candidates {
		if lt.Amount.Cmp(ext.Amount) != 0 || lt.Currency != ext.Currency {
			continue
		}
		if absDuration(lt.Timestamp.Sub(ext.Timestamp)) <= tolerance {
			matches = append(matches, lt)
		}
	}
	return matches
}

func (m *ExactMatcher) validate(ext ExternalTxn, lt *LedgerTxn) MatchResult {
	if ext.Amount.Cmp(lt.Amount) != 0 {
		return m.result(ext, lt, false, 0,
			fmt.Sprintf("Amount mismatch: external=%s, ledger=%s", ext.Amount, lt.Amount))
	}
	if ext.Currency != lt.Currency {
		return m.result(ext, lt, false, 0,
			fmt.Sprintf("Currency mismatch: external=%s, ledger=%s", ext.Currency, lt.Currency))
	}
	diffSecs := ext.Timestamp.Sub(lt.Timestamp).Seconds()
	if absFloat(diffSecs) > m.timestampToleranceSeconds {
		return m.result(ext, lt, false, 0,
			fmt.Sprintf("Timestamp outside tolerance: diff=%.0fs", diffSecs))
	}
	return m.result(ext, lt, true, 1.0, "")
}

func (m *ExactMatcher) result(ext ExternalTxn, lt *LedgerTxn, matched bool, score float64, reason string) MatchResult {
	r := MatchResult{
		ExternalTxnID:  ext.TxnID,
		Matched:        matched,
		MatchScore:     score,
		MismatchReason: reason,
		Metadata: Metadata{
			"external_description": ext.Description,
			"match_criteria":       "ExactMatcher",
		},
	}
	if lt != nil {
		id := lt.ID
		r.LedgerTxnID = &id
		r.AmountDifference = new(big.Int).Sub(ext.Amount, lt.Amount)
		r.TimestampDiffSecs = ext.Timestamp.Sub(lt.Timestamp).Seconds()
		r.Metadata["ledger_event_type"] = lt.EventType
	} else {
		r.AmountDifference = big.NewInt(0)
	}
	return r
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
