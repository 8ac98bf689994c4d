// ledger-drift-check recomputes every counterparty balance from the ledger and
// reports rows whose cached current_balance has drifted. Read-only: it never
// repairs anything.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/ledger-drift-check [-mill-id <uuid>]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/models/reports"
	"github.com/riceworks/millbooks_backend/utils"
)

func main() {
	millID := flag.String("mill-id", "", "Optional: check only one mill (uuid string). If empty, checks all mills.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	adminCtx := utils.SetSkipTenantScopeInContext(ctx, true)

	var mills []models.Mill
	query := db.WithContext(adminCtx).Model(&models.Mill{}).Select("id, name")
	if *millID != "" {
		query = query.Where("id = ?", *millID)
	}
	if err := query.Find(&mills).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list mills: %v\n", err)
		os.Exit(1)
	}
	if len(mills) == 0 {
		fmt.Fprintln(os.Stderr, "no mills matched")
		os.Exit(2)
	}

	dirty := 0
	for _, mill := range mills {
		millCtx := utils.SetMillIdInContext(ctx, mill.ID.String())
		report, err := reports.GetReconciliationReport(millCtx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mill %s (%s): reconciliation failed: %v\n", mill.ID, mill.Name, err)
			os.Exit(1)
		}
		if report.Clean {
			fmt.Printf("mill %s (%s): clean\n", mill.ID, mill.Name)
			continue
		}
		for _, row := range report.Rows {
			if row.Drift.IsZero() {
				continue
			}
			dirty++
			fmt.Printf("mill %s (%s): %s %d %q drift=%s (balance=%s opening=%s ledger=%s)\n",
				mill.ID, mill.Name,
				row.CounterpartyType, row.CounterpartyId, row.Name,
				row.Drift, row.CurrentBalance, row.OpeningBalance, row.LedgerSum)
		}
	}

	if dirty > 0 {
		fmt.Printf("%d counterparty rows have drift\n", dirty)
		os.Exit(3)
	}
	fmt.Println("all balances match their ledgers")
}
