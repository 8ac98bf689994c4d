package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireMillPostingLock serializes posting per mill across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the posting transaction.
func AcquireMillPostingLock(tx *gorm.DB, millId string) error {
	lockName := fmt.Sprintf("posting:%s", millId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for mill_id=%s", millId)
	}
	return nil
}

func ReleaseMillPostingLock(tx *gorm.DB, millId string) {
	lockName := fmt.Sprintf("posting:%s", millId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
