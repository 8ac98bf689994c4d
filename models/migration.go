package models

import (
	"log"

	"github.com/riceworks/millbooks_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Mill{}, &MillSetting{},
		&User{},
		&Party{}, &Broker{}, &LedgerEntry{},
		&StockRecord{}, &StockTransfer{},
		&Purchase{}, &Sale{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
