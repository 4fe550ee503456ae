package aux

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
)

// Archiver moves sessions between the active and archive partitions
// (spec.md §4.12 "archive move/restore + scheduled sweep"), grounded on
// gocron's scheduler idiom from the example pack's cron-job orchestrator
// (cronEntry/NewJob/CronJob/NewTask shape), adapted to sessionmcp's
// single-sweep-task domain instead of its many named/progress-tracked jobs.
type Archiver struct {
	Store    *vectorstore.Store
	Registry *registry.Registry
	Logger   *slog.Logger

	scheduler gocron.Scheduler
}

// Move archives a session (spec.md §4.5 "move_to_partition").
func (a *Archiver) Move(sessionID string) error {
	if err := a.Store.MoveToPartition(sessionID, vectorstore.PartitionArchive); err != nil {
		return err
	}
	archived := true
	return a.Registry.Update(sessionID, registry.Update{Archived: &archived})
}

// Restore moves a session back to the active partition.
func (a *Archiver) Restore(sessionID string) error {
	if err := a.Store.MoveToPartition(sessionID, vectorstore.PartitionActive); err != nil {
		return err
	}
	archived := false
	return a.Registry.Update(sessionID, registry.Update{Archived: &archived})
}

// Sweep archives every non-archived session whose last-synced time is
// older than thresholdDays (spec.md §4.12 "threshold_days default 365").
func (a *Archiver) Sweep(thresholdDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -thresholdDays)
	notArchived := false
	candidates := a.Registry.List(registry.ListFilter{Archived: &notArchived})

	moved := 0
	for _, s := range candidates {
		if s.LastSynced.IsZero() || s.LastSynced.After(cutoff) {
			continue
		}
		if err := a.Move(s.SessionID); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// StartScheduledSweep registers a recurring archive sweep at cronExpr
// (spec.md §4.12 "optional scheduled sweep"). No-op if already started.
func (a *Archiver) StartScheduledSweep(cronExpr string, thresholdDays int) error {
	if a.scheduler != nil {
		return nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "create archive sweep scheduler", err)
	}

	_, err = s.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			moved, err := a.Sweep(thresholdDays)
			if err != nil {
				a.logger().Error("archive sweep failed", slog.String("error", err.Error()))
				return
			}
			a.logger().Info("archive sweep completed", slog.Int("moved", moved))
		}),
		gocron.WithName("archive-sweep"),
	)
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindConfigInvalid, fmt.Sprintf("invalid archive sweep schedule %q", cronExpr), err)
	}

	a.scheduler = s
	s.Start()
	return nil
}

// StopScheduledSweep shuts down the sweep scheduler, if running.
func (a *Archiver) StopScheduledSweep() error {
	if a.scheduler == nil {
		return nil
	}
	err := a.scheduler.Shutdown()
	a.scheduler = nil
	return err
}

func (a *Archiver) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
