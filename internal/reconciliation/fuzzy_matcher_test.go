package reconciliation

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
)

func defaultFuzzyWeights() FuzzyWeights {
	return FuzzyWeights{Amount: 0.4, Timestamp: 0.3, Metadata: 0.3}
}

func TestFuzzyMatcher_IdenticalAmountAndTimestamp(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.80)
	now := time.Now()
	lt := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}
	ext := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}

	result := m.Match(ext, []LedgerTxn{lt})

	// amountSim=1.0, timeSim=1.0, metadataSim defaults to 0.5 with no
	// description or shared metadata keys on either side:
	// 1.0*0.4 + 1.0*0.3 + 0.5*0.3 = 0.85
	want := 0.85
	if diff := result.MatchScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MatchScore = %v, want %v", result.MatchScore, want)
	}
	if !result.Matched {
		t.Fatal("expected match above 0.80 threshold")
	}
}

func TestFuzzyMatcher_CurrencyMismatchGatesScoreToZero(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.80)
	now := time.Now()
	lt := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "EUR", Timestamp: now}
	ext := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}

	result := m.Match(ext, []LedgerTxn{lt})
	if result.Matched {
		t.Fatal("currency mismatch must gate the score to zero regardless of other similarity")
	}
	if result.MatchScore != 0 {
		t.Errorf("MatchScore = %v, want 0", result.MatchScore)
	}
}

func TestFuzzyMatcher_BelowThreshold(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.80)
	now := time.Now()
	lt := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}
	ext := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "50000"), Currency: "USD", Timestamp: now.Add(24 * time.Hour)}

	result := m.Match(ext, []LedgerTxn{lt})
	if result.Matched {
		t.Fatal("expected no match: amount and timestamp both far outside tolerance")
	}
}

func TestFuzzyMatcher_SelectsHighestScoringCandidate(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.0)
	now := time.Now()
	far := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now.Add(time.Hour)}
	close_ := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}
	ext := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now}

	result := m.Match(ext, []LedgerTxn{far, close_})
	if result.LedgerTxnID == nil || *result.LedgerTxnID != close_.ID {
		t.Errorf("expected best match to be the candidate with identical timestamp")
	}
}

func TestFuzzyMatcher_MatchingDescriptionRaisesMetadataSimilarity(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.0)
	now := time.Now()
	lt := LedgerTxn{ID: uuid.New(), Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now, Description: "Invoice 4471 payment"}
	extSame := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now, Description: "Invoice 4471 payment"}
	extDiff := ExternalTxn{TxnID: "ext-2", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: now, Description: "unrelated memo text"}

	sameResult := m.Match(extSame, []LedgerTxn{lt})
	diffResult := m.Match(extDiff, []LedgerTxn{lt})

	if sameResult.MatchScore <= diffResult.MatchScore {
		t.Errorf("identical description should score at least as high as a dissimilar one: same=%v diff=%v",
			sameResult.MatchScore, diffResult.MatchScore)
	}
}

func TestFuzzyMatcher_NoCandidates(t *testing.T) {
	m := NewFuzzyMatcher(defaultFuzzyWeights(), 0.1, 300, 0.80)
	ext := ExternalTxn{TxnID: "ext-1", Amount: mustBig(t, "10000"), Currency: "USD", Timestamp: time.Now()}

	result := m.Match(ext, nil)
	if result.Matched {
		t.Fatal("expected no match with zero candidates")
	}
	if result.LedgerTxnID != nil {
		t.Error("LedgerTxnID should be nil when no candidate was selected")
	}
	if result.AmountDifference == nil || result.AmountDifference.Cmp(big.NewInt(0)) != 0 {
		t.Error("AmountDifference should be zero when no candidate was selected")
	}
}
