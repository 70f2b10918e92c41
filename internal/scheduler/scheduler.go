// Package scheduler triggers a daily reconciliation run per configured
// source. It is ambient infrastructure a runnable service needs, not part
// of the matching pipeline itself.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mbd888/ledger/internal/reconciliation"
)

// Source is one configured daily reconciliation target.
type Source struct {
	Tag    reconciliation.SourceTag
	Params reconciliation.LoadParams
}

// Scheduler runs ReconOrchestrator.Run once per day per configured source,
// guarding against a second concurrent invocation for the same (date,
// source) key within this process.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *reconciliation.Orchestrator
	sources      []Source
	hour         int
	logger       *slog.Logger
	inFlight     sync.Map // key: "date|source" -> struct{}
}

// New builds a Scheduler that fires daily at hour (0-23 UTC), running the
// orchestrator once for each source against "yesterday"'s date.
func New(orchestrator *reconciliation.Orchestrator, sources []Source, hour int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		orchestrator: orchestrator,
		sources:      sources,
		hour:         hour,
		logger:       logger,
	}
}

// Start registers the daily job and starts the cron scheduler. It returns
// immediately; the job runs in cron's own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := cronSpecForHour(s.hour)
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", spec, "sources", len(s.sources))
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight job to return.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// runOnce fires the configured sources against yesterday's date, skipping
// any source whose (date, source) key is already in flight in this
// process.
func (s *Scheduler) runOnce(ctx context.Context) {
	date := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	for _, src := range s.sources {
		key := dedupeKey(date, src.Tag)
		if _, loaded := s.inFlight.LoadOrStore(key, struct{}{}); loaded {
			s.logger.Warn("skipping duplicate scheduled run", "date", date.Format("2006-01-02"), "source", src.Tag)
			continue
		}

		go func(src Source) {
			defer s.inFlight.Delete(key)
			jobID, err := s.orchestrator.Run(ctx, date, src.Tag, src.Params)
			if err != nil {
				s.logger.Error("scheduled reconciliation run failed",
					"date", date.Format("2006-01-02"), "source", src.Tag, "error", err)
				return
			}
			s.logger.Info("scheduled reconciliation run complete",
				"date", date.Format("2006-01-02"), "source", src.Tag, "job_id", jobID)
		}(src)
	}
}

func dedupeKey(date time.Time, source reconciliation.SourceTag) string {
	return date.Format("2006-01-02") + "|" + string(source)
}

func cronSpecForHour(hour int) string {
	return "0 " + itoa(hour) + " * * *"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
