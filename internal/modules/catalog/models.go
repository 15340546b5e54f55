package catalog

import "time"

const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Plan is a sellable eSIM data plan.
type Plan struct {
	ID             string  `gorm:"type:char(36);primaryKey" json:"id"`
	Slug           string  `gorm:"type:varchar(128);not null;uniqueIndex:ux_plans_slug" json:"slug"`
	Name           string  `gorm:"type:varchar(255);not null" json:"name"`
	Region         string  `gorm:"type:varchar(64);not null" json:"region"`
	DurationDays   int     `gorm:"not null" json:"duration_days"`
	DataMB         int     `gorm:"column:data_mb;not null" json:"data_mb"`
	PriceCents     int     `gorm:"not null" json:"price_cents"`
	Currency       string  `gorm:"type:char(3);not null" json:"currency"`
	ProviderPlanID *string `gorm:"type:varchar(128)" json:"provider_plan_id,omitempty"`
	Status         string  `gorm:"type:varchar(16);not null" json:"status"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

func (p Plan) Active() bool { return p.Status == StatusActive }

// PlanRef is what the provisioning step needs from the catalog.
type PlanRef struct {
	Slug           string
	Name           string
	ProviderPlanID string
}
