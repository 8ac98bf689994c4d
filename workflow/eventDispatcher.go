package workflow

import (
	"context"
	"errors"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/models/reports"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/sirupsen/logrus"
)

const dispatcherHandlerName = "processMillEvent"

// stockAffectingEvents are the events that can push a bucket below its
// low-stock threshold.
var stockAffectingEvents = map[string]bool{
	models.EventSaleCreated:      true,
	models.EventSaleUpdated:      true,
	models.EventStockTransferred: true,
	models.EventStockAdjusted:    true,
	models.EventPurchaseDeleted:  true,
}

// ProcessMillEvent handles one pushed Pub/Sub notification. Processing is
// at-least-once: a redis lock serializes workers per mill (best effort), the
// DB idempotency key is the durable guard, and the MySQL advisory lock covers
// the window where redis is unavailable.
func ProcessMillEvent(ctx context.Context, logger *logrus.Logger, messageId string, event config.MillEvent) error {
	if event.MillId == "" {
		return errors.New("mill id is required")
	}
	if messageId == "" {
		return errors.New("message id is required")
	}

	lock, err := utils.MillLock(ctx, event.MillId, "posting", "eventDispatcher.go", "ProcessMillEvent")
	if err != nil {
		config.LogError(logger, "eventDispatcher.go", "ProcessMillEvent", "MillLock", event.MillId, err)
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := AcquireMillPostingLock(tx, event.MillId); err != nil {
		tx.Rollback()
		return err
	}
	defer ReleaseMillPostingLock(tx, event.MillId)

	skip, err := BeginIdempotency(tx, event.MillId, dispatcherHandlerName, messageId)
	if err != nil {
		tx.Rollback()
		return err
	}
	if skip {
		tx.Rollback()
		logger.WithFields(logrus.Fields{
			"mill_id":    event.MillId,
			"event":      event.Event,
			"message_id": messageId,
		}).Info("event already processed, skipping")
		return nil
	}

	handlerErr := handleMillEvent(ctx, logger, event)
	if handlerErr != nil {
		_ = MarkIdempotencyFailed(tx, event.MillId, dispatcherHandlerName, messageId, handlerErr)
		if err := tx.Commit().Error; err != nil {
			tx.Rollback()
			return err
		}
		return handlerErr
	}

	if err := MarkIdempotencySucceeded(tx, event.MillId, dispatcherHandlerName, messageId); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func handleMillEvent(ctx context.Context, logger *logrus.Logger, event config.MillEvent) error {
	handlerCtx := utils.SetMillIdInContext(ctx, event.MillId)

	if event.Event == models.EventPaymentRecorded {
		return checkLedgerDrift(handlerCtx, logger, event)
	}
	if !stockAffectingEvents[event.Event] {
		return nil
	}

	enabled := models.GetMillSetting(handlerCtx, event.MillId, models.SettingLowStockAlertEnabled, "true")
	if enabled != "true" {
		return nil
	}

	alerts, err := reports.GetLowStockAlerts(handlerCtx)
	if err != nil {
		return err
	}
	for _, alert := range alerts {
		logger.WithFields(logrus.Fields{
			"mill_id":    event.MillId,
			"event":      event.Event,
			"stock_type": alert.StockType,
			"variety":    alert.Variety,
			"current":    alert.CurrentQuantity.String(),
			"threshold":  alert.LowStockThreshold.String(),
			"shortfall":  alert.Shortfall.String(),
		}).Warn("stock below low-stock threshold")
	}
	return nil
}

// checkLedgerDrift verifies that cached counterparty balances still match the
// ledger after a payment posts. Drift is reported, not repaired.
func checkLedgerDrift(ctx context.Context, logger *logrus.Logger, event config.MillEvent) error {
	report, err := reports.GetReconciliationReport(ctx)
	if err != nil {
		return err
	}
	if report.Clean {
		return nil
	}
	for _, row := range report.Rows {
		if row.Drift.IsZero() {
			continue
		}
		logger.WithFields(logrus.Fields{
			"mill_id":           event.MillId,
			"counterparty_type": row.CounterpartyType,
			"counterparty_id":   row.CounterpartyId,
			"name":              row.Name,
			"drift":             row.Drift.String(),
		}).Error("ledger drift detected")
	}
	return nil
}
