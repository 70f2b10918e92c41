package reconciliation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/mbd888/ledger/internal/money"
)

// FuzzyWeights are the per-signal weights of the composite score; they
// must sum to 1.
type FuzzyWeights struct {
	Amount    float64
	Timestamp float64
	Metadata  float64
}

// FuzzyMatcher scores every currency-matched candidate and selects the
// highest; matched iff the best score clears minMatchScore.
type FuzzyMatcher struct {
	weights                   FuzzyWeights
	amountTolerancePercent    float64
	timestampToleranceSeconds float64
	minMatchScore             float64
}

// NewFuzzyMatcher builds a FuzzyMatcher from the reconciliation config.
func NewFuzzyMatcher(weights FuzzyWeights, amountTolerancePercent, timestampToleranceSeconds, minMatchScore float64) *FuzzyMatcher {
	return &FuzzyMatcher{
		weights:                   weights,
		amountTolerancePercent:    amountTolerancePercent,
		timestampToleranceSeconds: timestampToleranceSeconds,
		minMatchScore:             minMatchScore,
	}
}

// Match scores ext against every candidate and returns the best result.
func (m *FuzzyMatcher) Match(ext ExternalTxn, candidates []LedgerTxn) MatchResult {
	var best *LedgerTxn
	bestScore := 0.0

	for i := range candidates {
		score := m.score(ext, &candidates[i])
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}

	if bestScore >= m.minMatchScore {
		return m.result(ext, best, true, bestScore, "")
	}
	reason := fmt.Sprintf("Best match score %.3f below threshold %.2f", bestScore, m.minMatchScore)
	return m.result(ext, best, false, bestScore, reason)
}

// score computes the weighted composite score for one candidate.
func (m *FuzzyMatcher) score(ext ExternalTxn, lt *LedgerTxn) float64 {
	currencyGate := 0.0
	if ext.Currency == lt.Currency {
		currencyGate = 1.0
	}

	amountSim := m.amountSimilarity(ext, lt)
	timeSim := m.timeSimilarity(ext, lt)
	metaSim := m.metadataSimilarity(ext, lt)

	return (amountSim*m.weights.Amount + timeSim*m.weights.Timestamp + metaSim*m.weights.Metadata) * currencyGate
}

func (m *FuzzyMatcher) amountSimilarity(ext ExternalTxn, lt *LedgerTxn) float64 {
	if ext.Amount.Cmp(lt.Amount) == 0 {
		return 1.0
	}

	d := money.RelativeDiff(ext.Amount, lt.Amount)
	tolerance := m.amountTolerancePercent / 100

	if d <= tolerance {
		return 1.0 - (d/tolerance)*0.5
	}
	if d >= 1 {
		return 0
	}
	return 0.5 * (1.0 - d)
}

func (m *FuzzyMatcher) timeSimilarity(ext ExternalTxn, lt *LedgerTxn) float64 {
	d := absFloat(ext.Timestamp.Sub(lt.Timestamp).Seconds())
	tolerance := m.timestampToleranceSeconds

	if d <= tolerance {
		return 1.0 - (d/tolerance)*0.5
	}
	maxDiff := tolerance * 10
	if d > maxDiff {
		return 0
	}
	return 0.5 * (1.0 - (d-tolerance)/(maxDiff-tolerance))
}

// metadataSimilarity combines description similarity, shared-key
// similarity, and a transaction-reference cross-check into a single
// [0,1] score via a quadratic-weighted mean, preserved from the original
// scoring model: Σsᵢ²/Σsᵢ, which biases the result toward the strongest
// signal rather than averaging them flat.
func (m *FuzzyMatcher) metadataSimilarity(ext ExternalTxn, lt *LedgerTxn) float64 {
	var scores []float64

	if ext.Description != "" && lt.Description != "" {
		scores = append(scores, stringSimilarity(ext.Description, lt.Description))
	}

	for key, extVal := range ext.Metadata {
		ledgerVal, ok := lt.Metadata[key]
		if !ok {
			continue
		}
		extStr := strings.ToLower(strings.TrimSpace(fmt.Sprint(extVal)))
		ledgerStr := strings.ToLower(strings.TrimSpace(fmt.Sprint(ledgerVal)))
		if extStr == "" || ledgerStr == "" {
			continue
		}
		if extStr == ledgerStr {
			scores = append(scores, 1.0)
		} else {
			scores = append(scores, stringSimilarity(extStr, ledgerStr))
		}
	}

	if ref := m.compareReferences(ext, lt); ref > 0 {
		scores = append(scores, ref)
	}

	if len(scores) == 0 {
		return 0.5
	}

	var weightedSum, weightSum float64
	for _, s := range scores {
		weightedSum += s * s
		weightSum += s
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

func (m *FuzzyMatcher) compareReferences(ext ExternalTxn, lt *LedgerTxn) float64 {
	for key, value := range lt.Metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "ref") || strings.Contains(lower, "id") {
			if strings.EqualFold(fmt.Sprint(value), ext.TxnID) {
				return 1.0
			}
		}
	}
	for key, value := range ext.Metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "ref") || strings.Contains(lower, "id") {
			if strings.EqualFold(fmt.Sprint(value), lt.ID.String()) {
				return 1.0
			}
		}
	}

	if ext.Description != "" {
		desc := strings.ToLower(ext.Description)
		if strings.Contains(desc, strings.ToLower(lt.ID.String())) {
			return 0.8
		}
		if strings.Contains(desc, strings.ToLower(lt.TransactionID.String())) {
			return 0.8
		}
	}

	return 0
}

func sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }
func zero() *big.Int             { return big.NewInt(0) }

func stringSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return levenshtein.Match(a, b, nil)
}

func (m *FuzzyMatcher) result(ext ExternalTxn, lt *LedgerTxn, matched bool, score float64, reason string) MatchResult {
	r := MatchResult{
		ExternalTxnID:  ext.TxnID,
		Matched:        matched,
		MatchScore:     score,
		MismatchReason: reason,
		Metadata: Metadata{
			"external_description": ext.Description,
			"match_criteria":       "FuzzyMatcher",
		},
	}
	if lt != nil {
		id := lt.ID
		r.LedgerTxnID = &id
		r.AmountDifference = sub(ext.Amount, lt.Amount)
		r.TimestampDiffSecs = ext.Timestamp.Sub(lt.Timestamp).Seconds()
		r.Metadata["ledger_event_type"] = lt.EventType
	} else {
		r.AmountDifference = zero()
	}
	return r
}
