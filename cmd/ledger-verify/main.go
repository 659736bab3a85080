package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
)

// ledger-verify checks stock records against the lots backing them and exits
// non-zero when the ledger has drifted. Intended for cron and for
// post-incident verification; it never modifies data.
func main() {
	warehouseFlag := flag.Int("warehouse", 0, "limit the check to one warehouse id")
	flag.Parse()

	config.ConnectDatabaseWithRetry()

	var warehouseId *int
	if *warehouseFlag > 0 {
		warehouseId = warehouseFlag
	}
	mismatches, err := models.VerifyLedgerConsistency(context.Background(), warehouseId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger verification failed: %v\n", err)
		os.Exit(2)
	}
	if len(mismatches) == 0 {
		fmt.Println("ledger consistent: every stock record matches its lots")
		return
	}

	fmt.Printf("found %d inconsistent stock record(s):\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  warehouse=%d material=%d existence=%s lots=%s diff=%s\n",
			m.WarehouseId, m.MaterialId,
			m.Existence.String(), m.LotsTotal.String(), m.Difference.String())
	}
	os.Exit(1)
}
