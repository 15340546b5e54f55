package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thespeedingatom/soviario-app-sub000/internal/database"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/text"
)

// Actors recorded on order_events.
const (
	ActorCheckout = "system:checkout"
	ActorSaga     = "system:provisioning"
)

const maxReasonLen = 255

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db, now: time.Now} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

// Insert stores a new order with its items and the creation audit event.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(o).Error; err != nil {
			return err
		}
		if err := tx.Create(&o.Items).Error; err != nil {
			return err
		}
		return tx.Create(&OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      ActorCheckout,
			Action:     "created",
			FromStatus: "",
			ToStatus:   o.Status,
			CreatedAt:  o.CreatedAt,
		}).Error
	})
}

func (r *Repo) GetWithItems(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.db.WithContext(ctx).
		Order("position ASC").
		Find(&o.Items, "order_id = ?", id).Error; err != nil {
		return Order{}, err
	}
	return o, nil
}

// SetPaymentSession stores the hosted checkout session id on a pending order.
func (r *Repo) SetPaymentSession(ctx context.Context, id, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"payment_session_id": sessionID,
			"updated_at":         r.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotActionable
	}
	return nil
}

// MarkProcessing moves a pending order to processing. It reports false when
// the order was not pending, which callers treat as "someone else owns it".
func (r *Repo) MarkProcessing(ctx context.Context, id, paymentIntentID string) (bool, error) {
	extra := map[string]any{}
	if paymentIntentID != "" {
		extra["payment_intent_id"] = paymentIntentID
	}
	var moved bool
	err := database.WithTxRetry(ctx, r.db, database.TxAttempts, func(tx *gorm.DB) error {
		var err error
		moved, err = r.transition(tx, id, []Status{StatusPending}, StatusProcessing, extra, ActorSaga, "mark_processing", "")
		return err
	})
	return moved, err
}

// ReclaimStale hands a processing order whose claim has not been touched
// since staleBefore to a new saga run. Only one caller can win: the winner
// refreshes updated_at, which takes the row out of the condition.
func (r *Repo) ReclaimStale(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	var moved bool
	err := database.WithTxRetry(ctx, r.db, database.TxAttempts, func(tx *gorm.DB) error {
		now := r.now()
		res := tx.Model(&Order{}).
			Where("id = ? AND status = ? AND updated_at < ?", id, StatusProcessing, staleBefore).
			Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected == 1
		if !moved {
			return nil
		}
		return tx.Create(&OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    id,
			Actor:      ActorSaga,
			Action:     "reclaim_stale",
			FromStatus: StatusProcessing,
			ToStatus:   StatusProcessing,
			Note:       nilIfEmpty("claim older than " + staleBefore.UTC().Format(time.RFC3339)),
			CreatedAt:  now,
		}).Error
	})
	return moved, err
}

// RecordProvisioning writes every item's credentials and completes the order
// in one transaction. Credentials are write-once: rewriting identical values
// is accepted, different values fail with ErrAlreadyProvisioned.
func (r *Repo) RecordProvisioning(ctx context.Context, id string, results []ItemProvisioning) error {
	if len(results) == 0 {
		return ErrNoItems
	}
	return database.WithTxRetry(ctx, r.db, database.TxAttempts, func(tx *gorm.DB) error {
		now := r.now()
		for _, res := range results {
			written, err := writeCredentials(tx, id, res, now)
			if err != nil {
				return err
			}
			if !written {
				if err := checkExisting(tx, id, res); err != nil {
					return err
				}
			}
		}

		moved, err := r.transition(tx, id, []Status{StatusProcessing}, StatusCompleted,
			map[string]any{"completed_at": now}, ActorSaga, "record_provisioning", "")
		if err != nil {
			return err
		}
		if !moved {
			return ErrInvalidTransition
		}
		return nil
	})
}

// MarkFailed fails a pending or processing order. Credentials for items that
// were provisioned before the failure are kept on their rows; items that
// already hold credentials are left untouched.
func (r *Repo) MarkFailed(ctx context.Context, id, reason string, partial []ItemProvisioning) (bool, error) {
	reason = text.Truncate(strings.TrimSpace(reason), maxReasonLen)
	var moved bool
	err := database.WithTxRetry(ctx, r.db, database.TxAttempts, func(tx *gorm.DB) error {
		now := r.now()
		for _, res := range partial {
			if _, err := writeCredentials(tx, id, res, now); err != nil {
				return err
			}
		}
		var err error
		moved, err = r.transition(tx, id, []Status{StatusPending, StatusProcessing}, StatusFailed,
			map[string]any{"failure_reason": reason}, ActorSaga, "mark_failed", reason)
		return err
	})
	return moved, err
}

func writeCredentials(tx *gorm.DB, orderID string, p ItemProvisioning, now time.Time) (bool, error) {
	if p.Result.ActivationCode == "" {
		return false, fmt.Errorf("item %s: empty activation code", p.ItemID)
	}
	res := tx.Model(&OrderItem{}).
		Where("id = ? AND order_id = ? AND activation_code IS NULL", p.ItemID, orderID).
		Updates(map[string]any{
			"esim_uid":        nilIfEmpty(p.Result.ESIMUID),
			"iccid":           nilIfEmpty(p.Result.ICCID),
			"activation_code": p.Result.ActivationCode,
			"manual_code":     nilIfEmpty(p.Result.ManualCode),
			"smdp_address":    nilIfEmpty(p.Result.SMDPAddress),
			"provisioned_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func checkExisting(tx *gorm.DB, orderID string, p ItemProvisioning) error {
	var it OrderItem
	err := tx.Where("id = ? AND order_id = ?", p.ItemID, orderID).First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, p.ItemID)
	}
	if err != nil {
		return err
	}
	if cur, ok := it.Provisioning(); ok && cur == p.Result {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAlreadyProvisioned, p.ItemID)
}

// transition is the single conditional write every status change goes
// through; it appends an audit event only when a row actually moved.
func (r *Repo) transition(tx *gorm.DB, id string, from []Status, to Status, extra map[string]any, actor, action, note string) (bool, error) {
	now := r.now()
	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}

	var current Order
	if err := tx.Select("id", "status").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrOrderNotFound
		}
		return false, err
	}
	if !statusIn(current.Status, from) {
		return false, nil
	}

	res := tx.Model(&Order{}).
		Where("id = ? AND status = ?", id, current.Status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	return true, tx.Create(&OrderEvent{
		ID:         uuid.NewString(),
		OrderID:    id,
		Actor:      actor,
		Action:     action,
		FromStatus: current.Status,
		ToStatus:   to,
		Note:       nilIfEmpty(note),
		CreatedAt:  now,
	}).Error
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

