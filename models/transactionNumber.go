package models

import (
	"context"
	"fmt"
	"time"

	"github.com/riceworks/millbooks_backend/config"
)

// NextInvoiceNumber produces the next document number for the month,
// formatted {PREFIX}-{YY}{MM}-{seq}. The count query is best effort; the
// unique index on the number column is what actually guarantees no
// duplicates, so callers must treat a duplicate-key error as a conflict.
func NextInvoiceNumber[T any](ctx context.Context, millId string, prefix string, numberColumn string) (string, error) {
	now := time.Now()
	monthTag := now.Format("0601")

	var model T
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&model).
		Where("mill_id = ?", millId).
		Where(numberColumn+" LIKE ?", fmt.Sprintf("%s-%s-%%", prefix, monthTag)).
		Count(&count).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%04d", prefix, monthTag, count+1), nil
}
