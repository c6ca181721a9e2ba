package delivery

import (
	"fmt"

	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// SelectOpts filters a selection pass.
type SelectOpts struct {
	// Priority limits selection to messages with this exact priority.
	Priority *int

	// Messengers limits selection to these messenger aliases.
	Messengers []string
}

// Batch is one messenger's share of a selection pass, ordered oldest
// message first.
type Batch struct {
	Messenger  string
	Dispatches []*models.Dispatch
}

// SelectPending selects pending dispatches and atomically claims them for
// processing. A dispatch that a concurrent pass claims first is silently
// excluded. Returned dispatches carry preloaded messages and are grouped
// by messenger, ordered by owning message creation time ascending.
func SelectPending(db *gorm.DB, opts SelectOpts) ([]Batch, error) {
	var claimed []*models.Dispatch

	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Preload("Message").
			Joins("JOIN messages ON messages.id = dispatches.message_id").
			Where("dispatches.dispatch_status = ?", models.DispatchStatusPending)

		if opts.Priority != nil {
			q = q.Where("messages.priority = ?", *opts.Priority)
		}
		if len(opts.Messengers) > 0 {
			q = q.Where("dispatches.messenger IN ?", opts.Messengers)
		}

		var candidates []*models.Dispatch
		if err := q.Order("messages.time_created ASC, dispatches.id ASC").Find(&candidates).Error; err != nil {
			return fmt.Errorf("select candidates: %w", err)
		}

		for _, d := range candidates {
			res := tx.Model(&models.Dispatch{}).
				Where("id = ? AND dispatch_status = ?", d.ID, models.DispatchStatusPending).
				Update("dispatch_status", models.DispatchStatusProcessing)
			if res.Error != nil {
				return fmt.Errorf("claim dispatch %d: %w", d.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				// Another pass won the race.
				continue
			}
			d.DispatchStatus = models.DispatchStatusProcessing
			claimed = append(claimed, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: %w", err)
	}

	index := map[string]int{}
	var batches []Batch
	for _, d := range claimed {
		i, ok := index[d.Messenger]
		if !ok {
			i = len(batches)
			index[d.Messenger] = i
			batches = append(batches, Batch{Messenger: d.Messenger})
		}
		batches[i].Dispatches = append(batches[i].Dispatches, d)
	}
	return batches, nil
}

// requeueErrored returns errored dispatches still under their type's retry
// limit to the pending state. This is the explicit reset making them
// eligible for the selection that follows; dispatches of unregistered
// message types are left untouched.
func requeueErrored(db *gorm.DB) (int, error) {
	total := 0
	for alias, mt := range RegisteredMessageTypes() {
		res := db.Model(&models.Dispatch{}).
			Where("dispatch_status = ? AND retry_count < ?", models.DispatchStatusError, mt.retryLimit()).
			Where("message_id IN (?)",
				db.Model(&models.Message{}).Select("id").Where("cls = ?", alias)).
			Update("dispatch_status", models.DispatchStatusPending)
		if res.Error != nil {
			return total, fmt.Errorf("delivery: requeue %s: %w", alias, res.Error)
		}
		total += int(res.RowsAffected)
	}
	return total, nil
}

// releaseDispatches returns claimed dispatches to the pending state
// without touching retry bookkeeping.
func releaseDispatches(db *gorm.DB, dispatches []*models.Dispatch) error {
	if len(dispatches) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(dispatches))
	for _, d := range dispatches {
		ids = append(ids, d.ID)
	}
	err := db.Model(&models.Dispatch{}).
		Where("id IN ? AND dispatch_status = ?", ids, models.DispatchStatusProcessing).
		Update("dispatch_status", models.DispatchStatusPending).Error
	if err != nil {
		return fmt.Errorf("delivery: release dispatches: %w", err)
	}
	return nil
}
