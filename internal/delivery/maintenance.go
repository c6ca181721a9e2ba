package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// UndeliveredNoticePriority is the priority used for the admin notice
// about failed dispatches, high enough to stay clear of regular traffic.
const UndeliveredNoticePriority = 999

// MarkRead marks a dispatch as read. Idempotent: marking an already read
// dispatch is a no-op.
func MarkRead(db *gorm.DB, dispatchID uint) error {
	var d models.Dispatch
	if err := db.First(&d, dispatchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("delivery: dispatch not found: %d", dispatchID)
		}
		return fmt.Errorf("delivery: mark read %d: %w", dispatchID, err)
	}
	if d.IsRead() {
		return nil
	}
	if err := db.Model(&d).Update("read_status", models.ReadStatusRead).Error; err != nil {
		return fmt.Errorf("delivery: mark read %d: %w", dispatchID, err)
	}
	return nil
}

// CleanupSent removes delivered dispatches, and messages left without any
// dispatches, from the store.
//
// agoDays limits removal to dispatches delivered at least that many days
// ago; zero removes all sent. dispatchesOnly keeps message rows intact.
func CleanupSent(db *gorm.DB, agoDays int, dispatchesOnly bool) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Dispatch{}).Where("dispatch_status = ?", models.DispatchStatusSent)
		if agoDays > 0 {
			q = q.Where("time_dispatched <= ?", time.Now().AddDate(0, 0, -agoDays))
		}

		var victims []models.Dispatch
		if err := q.Find(&victims).Error; err != nil {
			return fmt.Errorf("find sent dispatches: %w", err)
		}
		if len(victims) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(victims))
		messageIDs := map[uint]struct{}{}
		for _, d := range victims {
			ids = append(ids, d.ID)
			messageIDs[d.MessageID] = struct{}{}
		}

		if err := tx.Where("dispatch_id IN ?", ids).Delete(&models.DispatchError{}).Error; err != nil {
			return fmt.Errorf("delete dispatch errors: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Dispatch{}).Error; err != nil {
			return fmt.Errorf("delete dispatches: %w", err)
		}

		if dispatchesOnly {
			return nil
		}

		// Messages still referenced by remaining dispatches stay.
		for messageID := range messageIDs {
			var remaining int64
			if err := tx.Model(&models.Dispatch{}).Where("message_id = ?", messageID).Count(&remaining).Error; err != nil {
				return fmt.Errorf("count remaining dispatches for message %d: %w", messageID, err)
			}
			if remaining > 0 {
				continue
			}
			if err := tx.Delete(&models.Message{}, messageID).Error; err != nil {
				return fmt.Errorf("delete message %d: %w", messageID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delivery: cleanup sent: %w", err)
	}
	return nil
}

// CheckUndelivered counts permanently failed dispatches and, when any
// exist and notice recipients are configured, schedules and immediately
// flushes an email notice about them.
func CheckUndelivered(ctx context.Context, db *gorm.DB, to []string, siteURL string) (int, error) {
	var failed int64
	if err := db.Model(&models.Dispatch{}).
		Where("dispatch_status = ?", models.DispatchStatusFailed).
		Count(&failed).Error; err != nil {
		return 0, fmt.Errorf("delivery: count undelivered: %w", err)
	}
	if failed == 0 || len(to) == 0 {
		return int(failed), nil
	}

	recipients, err := Recipients("smtp", to...)
	if err != nil {
		return int(failed), err
	}

	priority := UndeliveredNoticePriority
	_, err = Schedule(db, "email_text", models.Context{
		SubjectKey:    "[SITEMESSAGE] Undelivered dispatches",
		SimpleTextKey: fmt.Sprintf("You have %d undelivered dispatch(es) at %s", failed, siteURL),
	}, ScheduleOpts{Recipients: recipients, Priority: &priority})
	if err != nil {
		return int(failed), err
	}

	if _, err := SendScheduled(ctx, db, SendOpts{Priority: &priority}); err != nil {
		return int(failed), err
	}
	return int(failed), nil
}

// PendingWithoutDispatches returns messages whose dispatch expansion was
// deferred at schedule time.
func PendingWithoutDispatches(db *gorm.DB) ([]models.Message, error) {
	var out []models.Message
	if err := db.Where("dispatches_ready = ?", false).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("delivery: messages without dispatches: %w", err)
	}
	return out, nil
}
