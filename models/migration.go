package models

import (
	"log"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&PurchaseOrder{}, &PurchaseOrderItem{},
		&InventoryLedgerEntry{}, &StockSummary{},
		&TransactionNumberSeries{},
		&History{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
