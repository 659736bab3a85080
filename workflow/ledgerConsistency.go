package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
)

// StartLedgerConsistencyCheck re-verifies the aggregate stock positions
// against their lots every few hours. A mismatch is a bug somewhere in the
// transaction discipline and is never repaired in place; in strict mode the
// offending record is additionally put on integrity hold so further ledger
// mutations against it are refused until it is repaired and the next check
// lifts the hold.
func StartLedgerConsistencyCheck(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()

		runLedgerCheck(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runLedgerCheck(ctx)
			}
		}
	}()
}

func runLedgerCheck(ctx context.Context) {
	logger := config.GetLogger()
	strict := config.StrictLedgerConsistency()

	var mismatches []models.LedgerMismatch
	var err error
	if strict {
		mismatches, err = models.EnforceLedgerConsistency(ctx)
	} else {
		mismatches, err = models.VerifyLedgerConsistency(ctx, nil)
	}
	if err != nil {
		config.LogError(logger, "workflow", "runLedgerCheck", "ledger verification failed", nil, err)
		return
	}

	for _, m := range mismatches {
		if strict {
			config.LogError(logger, "workflow", "runLedgerCheck", "ledger mismatch, record held", m,
				errors.New("existence diverges from lot totals"))
		} else {
			config.LogWarn(logger, "workflow", "runLedgerCheck", "ledger mismatch", m)
		}
	}
}
