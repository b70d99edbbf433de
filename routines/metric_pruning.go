// package routines provides configuration and logic
// for running background routines such as pruning
// of historical request metrics
package routines

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
	"github.com/kava-labs/kava-rpc-gateway/logging"
)

// MetricPruningRoutineConfig wraps values used
// for creating a new metric pruning routine
type MetricPruningRoutineConfig struct {
	Interval       time.Duration
	StartDelay     time.Duration
	MaxHistoryDays int64
	Database       database.MetricsDatabase
	Logger         *logging.ServiceLogger
}

// MetricPruningRoutine can be used to
// run a background routine on a configurable interval
// to delete request metrics older than the configured history
type MetricPruningRoutine struct {
	id             string
	interval       time.Duration
	startDelay     time.Duration
	maxHistoryDays int64
	db             database.MetricsDatabase
	*logging.ServiceLogger
}

// Run starts the metric pruning routine, returning error (if any)
// from starting the routine and an error channel which any errors
// encountered during running will be sent on. The routine stops
// and closes the channel once ctx is done.
func (mpr *MetricPruningRoutine) Run(ctx context.Context) (<-chan error, error) {
	errorChannel := make(chan error, 1)

	go func() {
		defer close(errorChannel)

		select {
		case <-time.After(mpr.startDelay):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(mpr.interval)
		defer ticker.Stop()

		for {
			mpr.prune(ctx, errorChannel)

			select {
			case tick := <-ticker.C:
				mpr.Logger.Trace().Str("routine", mpr.id).Time("tick", tick).Msg("metric pruning tick")
			case <-ctx.Done():
				return
			}
		}
	}()

	return errorChannel, nil
}

func (mpr *MetricPruningRoutine) prune(ctx context.Context, errorChannel chan<- error) {
	err := mpr.db.DeleteProxiedRequestMetricsOlderThanNDays(ctx, mpr.maxHistoryDays)
	if err == nil {
		mpr.Logger.Debug().Str("routine", mpr.id).Int64("max_history_days", mpr.maxHistoryDays).Msg("pruned request metrics")
		return
	}

	mpr.Logger.Error().Str("routine", mpr.id).Err(err).Msg("error pruning request metrics")

	// drop the error if nobody is reading
	select {
	case errorChannel <- err:
	default:
	}
}

// NewMetricPruningRoutine creates a new metric pruning routine
// using the provided config, returning the routine and error (if any)
func NewMetricPruningRoutine(config MetricPruningRoutineConfig) (*MetricPruningRoutine, error) {
	if config.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if config.MaxHistoryDays < 1 {
		return nil, ErrInvalidMaxHistoryDays
	}

	return &MetricPruningRoutine{
		id:             uuid.New().String(),
		interval:       config.Interval,
		startDelay:     config.StartDelay,
		maxHistoryDays: config.MaxHistoryDays,
		db:             config.Database,
		ServiceLogger:  config.Logger,
	}, nil
}
