package scheduler

import (
	"testing"
	"time"

	"github.com/mbd888/ledger/internal/reconciliation"
)

func TestCronSpecForHour(t *testing.T) {
	cases := map[int]string{0: "0 0 * * *", 2: "0 2 * * *", 23: "0 23 * * *"}
	for hour, want := range cases {
		if got := cronSpecForHour(hour); got != want {
			t.Errorf("cronSpecForHour(%d) = %q, want %q", hour, got, want)
		}
	}
}

func TestDedupeKey(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	k1 := dedupeKey(date, reconciliation.SourceBankCSV)
	k2 := dedupeKey(date, reconciliation.SourceCSV)
	if k1 == k2 {
		t.Error("different sources on the same date should produce different keys")
	}

	other := date.AddDate(0, 0, 1)
	k3 := dedupeKey(other, reconciliation.SourceBankCSV)
	if k1 == k3 {
		t.Error("same source on different dates should produce different keys")
	}
}
