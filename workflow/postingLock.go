package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
)

// AcquireOrderPostingLock serializes transitions per order across instances
// using MySQL advisory locks. GET_LOCK is connection-scoped, so this must be
// called on the same *gorm.DB that will do the posting transaction.
func AcquireOrderPostingLock(tx *gorm.DB, businessId string, orderId int) error {
	lockName := fmt.Sprintf("po-posting:%s:%d", businessId, orderId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for order %d (business_id=%s)", orderId, businessId)
	}
	return nil
}

func ReleaseOrderPostingLock(tx *gorm.DB, businessId string, orderId int) {
	lockName := fmt.Sprintf("po-posting:%s:%d", businessId, orderId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainOrderRedisLock is a best-effort optimization in front of the advisory
// lock. Reliability must not depend on Redis: a nil locker or a failed obtain
// just falls through to the MySQL lock.
func obtainOrderRedisLock(ctx context.Context, businessId string, orderId int) *redislock.Lock {
	if !config.UseRedisPostingLock() {
		return nil
	}
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	key := fmt.Sprintf("po-posting:%s:%d", businessId, orderId)
	lock, err := locker.Obtain(ctx, key, 30*time.Second, nil)
	if err != nil {
		return nil
	}
	return lock
}
