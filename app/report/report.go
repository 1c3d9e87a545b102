package report

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

const DefaultSchedule = "@every 30m"

// StatsSource is anything that can summarize its contents.
type StatsSource interface {
	Stats() (int, int64)
	MaxEntries() int
}

// Reporter periodically logs cache usage.
type Reporter struct {
	Log      logger.Logger
	Source   StatsSource
	Schedule string

	cron *cron.Cron
}

func (r *Reporter) Start(ctx context.Context) error {
	schedule := r.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return fmt.Errorf("scheduling cache report %q: %w", schedule, err)
	}
	r.cron.Start()

	r.Log.Info("cache report scheduled", "schedule", schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	return nil
}

// Stop stops scheduling and waits for a running report to finish.
func (r *Reporter) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Reporter) Report() {
	entries, size := r.Source.Stats()

	r.Log.Info(
		"cache usage",
		"entries", entries,
		"max_entries", r.Source.MaxEntries(),
		"attachments_size", humanize.IBytes(uint64(size)),
	)
}
