package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionNumberSeries hands out gapless per-module sequence numbers for a
// business. Rows are incremented under a row lock inside the caller's
// transaction so concurrent creates cannot observe the same number.
type TransactionNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index:uniq_series,unique;not null" json:"business_id"`
	ModuleName string    `gorm:"size:100;index:uniq_series,unique;not null" json:"module_name"`
	NextNumber int64     `gorm:"not null;default:1" json:"next_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextTransactionNumber reserves and returns the next sequence number for the
// module. Must run inside a transaction.
func NextTransactionNumber(tx *gorm.DB, businessId string, moduleName string) (int64, error) {
	var series TransactionNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND module_name = ?", businessId, moduleName).
		First(&series).Error
	if err == gorm.ErrRecordNotFound {
		series = TransactionNumberSeries{
			BusinessId: businessId,
			ModuleName: moduleName,
			NextNumber: 1,
		}
		if err := tx.Create(&series).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	n := series.NextNumber
	if err := tx.Model(&TransactionNumberSeries{}).
		Where("id = ?", series.ID).
		Update("next_number", n+1).Error; err != nil {
		return 0, err
	}
	return n, nil
}
