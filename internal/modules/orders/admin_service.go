package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ActionCancel = "cancel"
	ActionRefund = "refund"
	ActionRetry  = "retry"
)

type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService { return &AdminService{db: db} }

type TransitionInput struct {
	OrderID     string
	ActorUserID string // admin user id
	Action      string // cancel|refund|retry
	Note        string
}

// Transition applies a support action to an order. Provisioning states are
// owned by the saga and cannot be entered or left from here, except retry,
// which puts a failed order back to pending so the saga can run on it
// again. Items that already hold credentials keep them and are not issued
// a second time.
func (s *AdminService) Transition(ctx context.Context, in TransitionInput) (Status, error) {
	if in.OrderID == "" || in.ActorUserID == "" || in.Action == "" {
		return "", ErrNotActionable
	}

	var to Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", in.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		from := o.Status
		var err error
		to, err = nextStatus(from, in.Action)
		if err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]any{"status": to, "updated_at": now}
		if to == StatusPending {
			updates["failure_reason"] = nil
		}

		res := tx.Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		return tx.Create(&OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      "admin:" + in.ActorUserID,
			Action:     in.Action,
			FromStatus: from,
			ToStatus:   to,
			Note:       nilIfEmpty(strings.TrimSpace(in.Note)),
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return "", err
	}
	return to, nil
}

func nextStatus(from Status, action string) (Status, error) {
	switch action {
	case ActionCancel:
		if from == StatusPending {
			return StatusCancelled, nil
		}
	case ActionRefund:
		if from == StatusCompleted || from == StatusFailed {
			return StatusRefunded, nil
		}
	case ActionRetry:
		if from == StatusFailed {
			return StatusPending, nil
		}
	}
	return "", ErrInvalidTransition
}
