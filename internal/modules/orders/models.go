package orders

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether no further saga step may run for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Order struct {
	ID     string  `gorm:"type:char(36);primaryKey"`
	UserID *string `gorm:"type:char(36);index:ix_orders_user_id"`
	Email  string  `gorm:"type:varchar(255);not null"`

	Currency      string `gorm:"type:char(3);not null"`
	SubtotalCents int    `gorm:"not null"`
	DiscountCents int    `gorm:"not null"`
	TotalCents    int    `gorm:"not null"`

	Status           Status  `gorm:"type:varchar(16);not null"`
	PaymentSessionID *string `gorm:"type:varchar(128)"`
	PaymentIntentID  *string `gorm:"type:varchar(128)"`
	FailureReason    *string `gorm:"type:varchar(255)"`

	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	CompletedAt *time.Time `gorm:"type:datetime(3)"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// OwnedBy reports whether userID may see the order.
func (o Order) OwnedBy(userID string) bool {
	return o.UserID != nil && *o.UserID == userID
}

// Provisioning returns the credentials already written for the order's items.
func (o Order) Provisioning() []ItemProvisioning {
	var out []ItemProvisioning
	for _, it := range o.Items {
		if p, ok := it.Provisioning(); ok {
			out = append(out, ItemProvisioning{ItemID: it.ID, Result: p})
		}
	}
	return out
}

// OrderItem is one purchased eSIM. Pricing and plan attributes are copied
// from the catalog at purchase time; credentials are written once.
type OrderItem struct {
	ID       string `gorm:"type:char(36);primaryKey"`
	OrderID  string `gorm:"type:char(36);not null;index:ix_order_items_order_id"`
	Position int    `gorm:"not null"`

	ProductSlug    string  `gorm:"type:varchar(128);not null"`
	ProductName    string  `gorm:"type:varchar(255);not null"`
	UnitPriceCents int     `gorm:"not null"`
	Quantity       int     `gorm:"not null"`
	LineTotalCents int     `gorm:"not null"`
	Currency       string  `gorm:"type:char(3);not null"`
	DurationDays   int     `gorm:"not null"`
	DataMB         int     `gorm:"column:data_mb;not null"`
	Region         string  `gorm:"type:varchar(64);not null"`
	ProviderPlanID *string `gorm:"type:varchar(128)"`

	ESIMUID        *string    `gorm:"column:esim_uid;type:varchar(128)"`
	ICCID          *string    `gorm:"column:iccid;type:varchar(32)"`
	ActivationCode *string    `gorm:"type:varchar(512)"`
	ManualCode     *string    `gorm:"type:varchar(255)"`
	SMDPAddress    *string    `gorm:"column:smdp_address;type:varchar(255)"`
	ProvisionedAt  *time.Time `gorm:"type:datetime(3)"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (OrderItem) TableName() string { return "order_items" }

func (it OrderItem) Provisioning() (Provisioning, bool) {
	if it.ActivationCode == nil || *it.ActivationCode == "" {
		return Provisioning{}, false
	}
	return Provisioning{
		ESIMUID:        deref(it.ESIMUID),
		ICCID:          deref(it.ICCID),
		ActivationCode: *it.ActivationCode,
		ManualCode:     deref(it.ManualCode),
		SMDPAddress:    deref(it.SMDPAddress),
	}, true
}

// Provisioning is the credential set returned by the eSIM provider.
type Provisioning struct {
	ESIMUID        string
	ICCID          string
	ActivationCode string
	ManualCode     string
	SMDPAddress    string
}

type ItemProvisioning struct {
	ItemID string
	Result Provisioning
}

type OrderEvent struct {
	ID         string  `gorm:"type:char(36);primaryKey"`
	OrderID    string  `gorm:"type:char(36);not null;index:ix_order_events_order_id"`
	Actor      string  `gorm:"type:varchar(64);not null"`
	Action     string  `gorm:"type:varchar(32);not null"`
	FromStatus Status  `gorm:"type:varchar(16);not null"`
	ToStatus   Status  `gorm:"type:varchar(16);not null"`
	Note       *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (OrderEvent) TableName() string { return "order_events" }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
