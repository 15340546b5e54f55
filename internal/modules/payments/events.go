package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/text"
)

type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"type:datetime(3);not null"`
	ProcessedAt  *time.Time `gorm:"type:datetime(3)"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

func (pe ProviderEvent) Processed() bool { return pe.ProcessedAt != nil }

// EventLog persists every verified webhook keyed by (provider, event_id).
// A redelivered event is reported as seen; only events whose earlier run
// finished are skipped, so a crash mid-run is retried on redelivery.
type EventLog struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewEventLog(db *gorm.DB, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{db: db, logger: logger, now: time.Now}
}

func (l *EventLog) Record(ctx context.Context, provider string, ev WebhookEvent, raw []byte) (ProviderEvent, bool, error) {
	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     ev.EventID,
		EventType:   ev.Type,
		PayloadJSON: datatypes.JSON(raw),
		ReceivedAt:  l.now(),
	}

	err := l.db.WithContext(ctx).Create(&pe).Error
	if err == nil {
		return pe, false, nil
	}
	if !isDup(err) {
		l.logger.ErrorContext(ctx, "failed to persist provider event", "provider", provider, "event_id", ev.EventID, "err", err)
		return ProviderEvent{}, false, err
	}

	var existing ProviderEvent
	if err := l.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, ev.EventID).
		First(&existing).Error; err != nil {
		return ProviderEvent{}, true, err
	}
	l.logger.InfoContext(ctx, "webhook event deduplicated", "provider", provider, "event_id", ev.EventID, "type", ev.Type, "processed", existing.Processed())
	return existing, true, nil
}

// Finish stamps the outcome. A nil procErr marks the event processed; an
// error is recorded but leaves it eligible for reprocessing.
func (l *EventLog) Finish(ctx context.Context, id string, procErr error) error {
	updates := map[string]any{}
	if procErr == nil {
		updates["processed_at"] = l.now()
		updates["process_error"] = nil
	} else {
		updates["process_error"] = text.Truncate(procErr.Error(), 250)
	}
	return l.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
