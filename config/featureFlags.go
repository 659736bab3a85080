package config

import (
	"os"
	"strconv"
	"strings"
)

// StrictLedgerConsistency makes the periodic ledger verification enforcing:
// any (warehouse, material) stock record whose existence does not equal the
// sum of its lots' available quantities is placed on integrity hold, and
// every ledger mutation against it fails with LedgerInconsistent until the
// record is repaired and the next check lifts the hold. Off, mismatches are
// only logged.
//
// Set via env:
// - STRICT_LEDGER_CONSISTENCY=true
func StrictLedgerConsistency() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_LEDGER_CONSISTENCY")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// AnomalyRulesEnabled gates the synchronous anomaly evaluation after stock
// mutations. On by default; set ANOMALY_RULES=off to disable (e.g. during
// bulk data migrations).
func AnomalyRulesEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ANOMALY_RULES")))
	return v != "off" && v != "false" && v != "0"
}

// BudgetDeviationPct is the tolerated overrun of a project's monthly spend
// against its assigned budget before the periodic scan raises an alert.
// BUDGET_DEVIATION_PCT env, default 10.
func BudgetDeviationPct() float64 {
	v := strings.TrimSpace(os.Getenv("BUDGET_DEVIATION_PCT"))
	if v == "" {
		return 10
	}
	pct, err := strconv.ParseFloat(v, 64)
	if err != nil || pct < 0 {
		return 10
	}
	return pct
}

// TopConsumerStdDevs is how many standard deviations above the peer-group
// mean an employee's monthly spend must sit before the top-consumer scan
// flags it. TOP_CONSUMER_STDDEVS env, default 2.
func TopConsumerStdDevs() float64 {
	v := strings.TrimSpace(os.Getenv("TOP_CONSUMER_STDDEVS"))
	if v == "" {
		return 2
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return 2
	}
	return n
}
