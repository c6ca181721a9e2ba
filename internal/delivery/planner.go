package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// ScheduleOpts holds optional parameters for scheduling a message.
type ScheduleOpts struct {
	// Recipients maps the message onto concrete (messenger, address)
	// pairs. Nil defers dispatch creation until PrepareDispatches.
	Recipients []Recipient

	// Sender is an opaque reference kept for audit only.
	Sender string

	// Priority overrides the message type's default when set.
	Priority *int

	// Lenient drops recipients addressed to unknown or unsupported
	// messengers instead of failing the schedule call.
	Lenient bool
}

// Scheduled is the result of a schedule call: the (possibly pre-existing,
// group-merged) message and all of its current dispatches.
type Scheduled struct {
	Message    *models.Message
	Dispatches []models.Dispatch
}

// SchedulePlain schedules a plain text message.
func SchedulePlain(db *gorm.DB, text string, opts ScheduleOpts) (*Scheduled, error) {
	return Schedule(db, "plain", models.Context{SimpleTextKey: text}, opts)
}

// Schedule creates a message of the given type and expands it into
// dispatch records. When the type declares a group mark and a still
// groupable message exists, the context is merged into it instead and
// uncovered recipients are attached to that message.
//
// A message is still groupable while its dispatches are not yet created
// or at least one of them is pending; once a send pass has claimed them
// all, grouping is closed for it.
func Schedule(db *gorm.DB, typeAlias string, context models.Context, opts ScheduleOpts) (*Scheduled, error) {
	mt, err := MessageTypeByAlias(typeAlias)
	if err != nil {
		return nil, err
	}

	recipients, err := checkRecipients(mt, opts.Recipients, opts.Lenient)
	if err != nil {
		return nil, err
	}

	priority := mt.Priority
	if opts.Priority != nil {
		priority = *opts.Priority
	}

	if context == nil {
		context = models.Context{}
	}

	var out *Scheduled
	err = db.Transaction(func(tx *gorm.DB) error {
		msg, err := groupTarget(tx, mt, opts.Sender)
		if err != nil {
			return err
		}

		if msg != nil {
			msg.Context = mt.mergeContext(msg.Context, context)
			if err := tx.Model(msg).Update("context", msg.Context).Error; err != nil {
				return fmt.Errorf("merge group %q: %w", mt.GroupMark, err)
			}
			// Merged content invalidates compiled bodies of the
			// still-pending dispatches.
			if err := tx.Model(&models.Dispatch{}).
				Where("message_id = ? AND dispatch_status = ?", msg.ID, models.DispatchStatusPending).
				Update("message_cache", "").Error; err != nil {
				return fmt.Errorf("invalidate group caches: %w", err)
			}
		} else {
			msg = &models.Message{
				UUID:        uuid.NewString(),
				Cls:         mt.Alias,
				GroupMark:   mt.GroupMark,
				Context:     context,
				Sender:      opts.Sender,
				Priority:    priority,
				TimeCreated: time.Now(),
			}
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("create message: %w", err)
			}
		}

		if opts.Recipients != nil {
			if _, err := planDispatches(tx, msg, recipients); err != nil {
				return err
			}
			if !msg.DispatchesReady {
				msg.DispatchesReady = true
				if err := tx.Model(msg).Update("dispatches_ready", true).Error; err != nil {
					return fmt.Errorf("mark dispatches ready: %w", err)
				}
			}
		}

		var dispatches []models.Dispatch
		if err := tx.Where("message_id = ?", msg.ID).Order("id ASC").Find(&dispatches).Error; err != nil {
			return fmt.Errorf("load dispatches: %w", err)
		}

		out = &Scheduled{Message: msg, Dispatches: dispatches}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("delivery: schedule %s: %w", typeAlias, err)
	}
	return out, nil
}

// Plan creates dispatches for an existing message, deduplicating against
// non-terminal dispatches already covering a (messenger, address) pair.
// Used directly by deferred preparation.
func Plan(db *gorm.DB, msg *models.Message, recipients []Recipient) ([]models.Dispatch, error) {
	var created []models.Dispatch
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = planDispatches(tx, msg, recipients)
		if err != nil {
			return err
		}
		if len(recipients) > 0 && !msg.DispatchesReady {
			msg.DispatchesReady = true
			if err := tx.Model(msg).Update("dispatches_ready", true).Error; err != nil {
				return fmt.Errorf("mark dispatches ready: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: plan message %d: %w", msg.ID, err)
	}
	return created, nil
}

// checkRecipients validates recipient messengers against the registry and
// the message type, dropping offenders in lenient mode.
func checkRecipients(mt *MessageType, recipients []Recipient, lenient bool) ([]Recipient, error) {
	if recipients == nil {
		return nil, nil
	}

	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if _, err := MessengerByAlias(r.Messenger); err != nil {
			if lenient {
				continue
			}
			return nil, err
		}
		if !mt.Supports(r.Messenger) {
			if lenient {
				continue
			}
			return nil, &UnsupportedMessengerError{MessageType: mt.Alias, Messenger: r.Messenger}
		}
		out = append(out, r)
	}
	return out, nil
}

// groupTarget finds a still groupable message for the type's group mark.
func groupTarget(tx *gorm.DB, mt *MessageType, sender string) (*models.Message, error) {
	if mt.GroupMark == "" {
		return nil, nil
	}

	var msg models.Message
	err := tx.Where("cls = ? AND gmark = ? AND sender = ?", mt.Alias, mt.GroupMark, sender).
		Where("dispatches_ready = ? OR EXISTS (SELECT 1 FROM dispatches"+
			" WHERE dispatches.message_id = messages.id AND dispatches.dispatch_status = ?)",
			false, models.DispatchStatusPending).
		Order("id ASC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find group %q: %w", mt.GroupMark, err)
	}
	return &msg, nil
}

// planDispatches creates pending dispatches for recipients not already
// covered by a non-terminal dispatch of this message.
func planDispatches(tx *gorm.DB, msg *models.Message, recipients []Recipient) ([]models.Dispatch, error) {
	var created []models.Dispatch

	for _, r := range recipients {
		var covered int64
		err := tx.Model(&models.Dispatch{}).
			Where("message_id = ? AND messenger = ? AND address = ?", msg.ID, r.Messenger, r.Address).
			Where("dispatch_status NOT IN ?", []int{models.DispatchStatusSent, models.DispatchStatusFailed}).
			Count(&covered).Error
		if err != nil {
			return nil, fmt.Errorf("check coverage for %s [%s]: %w", r.Address, r.Messenger, err)
		}
		if covered > 0 {
			continue
		}

		d := models.Dispatch{
			MessageID:      msg.ID,
			Messenger:      r.Messenger,
			Address:        r.Address,
			DispatchStatus: models.DispatchStatusPending,
			ReadStatus:     models.ReadStatusUnread,
			TimeCreated:    time.Now(),
		}
		if err := tx.Create(&d).Error; err != nil {
			return nil, fmt.Errorf("create dispatch for %s [%s]: %w", r.Address, r.Messenger, err)
		}
		created = append(created, d)
	}
	return created, nil
}
