package workflow

import (
	"context"
	"time"

	"github.com/eppcloud/epp_backend/anomaly"
	"github.com/eppcloud/epp_backend/config"
)

// StartPeriodicScans runs the monthly anomaly scans (top consumer, budget
// deviation) for the previous calendar month once a day. Both scans are
// idempotent per period, so the daily cadence only picks up late data.
func StartPeriodicScans(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		runPeriodicScans(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runPeriodicScans(ctx)
			}
		}
	}()
}

func runPeriodicScans(ctx context.Context) {
	logger := config.GetLogger()
	previous := time.Now().UTC().AddDate(0, -1, 0)
	year, month := previous.Year(), previous.Month()

	raised, err := anomaly.TopConsumerScan(ctx, year, month)
	if err != nil {
		config.LogError(logger, "workflow", "runPeriodicScans", "top consumer scan failed", nil, err)
	} else if raised > 0 {
		config.LogWarn(logger, "workflow", "runPeriodicScans", "top consumer alerts raised", raised)
	}

	raised, err = anomaly.BudgetDeviationScan(ctx, year, month)
	if err != nil {
		config.LogError(logger, "workflow", "runPeriodicScans", "budget deviation scan failed", nil, err)
	} else if raised > 0 {
		config.LogWarn(logger, "workflow", "runPeriodicScans", "budget deviation alerts raised", raised)
	}
}
