package models

import (
	"errors"

	"github.com/riceworks/millbooks_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockDocumentForUpdate reloads a document row inside tx under FOR UPDATE.
// Pending-amount guards and reversal postings must read this locked copy,
// never a snapshot fetched before Begin, or two concurrent mutations of the
// same document both post their deltas against the same stale base.
func lockDocumentForUpdate[T any](tx *gorm.DB, millId string, id int) (*T, error) {
	var doc T
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("mill_id = ?", millId).
		First(&doc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &doc, nil
}
