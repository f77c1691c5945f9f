package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Frequency string

const (
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual:
		return true
	}
	return false
}

// Days is the fixed step of week-based frequencies, 0 otherwise.
func (f Frequency) Days() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	}
	return 0
}

// Months is the calendar-month step of month-based frequencies, 0 otherwise.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiannual:
		return 6
	case FrequencyAnnual:
		return 12
	}
	return 0
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Profile is a standing billing agreement. Dates are civil dates held as
// midnight UTC. Version is the optimistic lock token and changes on every save.
type Profile struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey"`
	AccountID            uuid.UUID        `gorm:"type:uuid;not null;index"`
	ClientID             uuid.UUID        `gorm:"type:uuid;not null"`
	Name                 string           `gorm:"type:text;not null"`
	Frequency            Frequency        `gorm:"type:text;not null"`
	StartDate            time.Time        `gorm:"type:date;not null"`
	EndDate              *time.Time       `gorm:"type:date"`
	NextDueDate          time.Time        `gorm:"type:date;not null;index:idx_recurring_profiles_due,priority:2"`
	DayOfMonth           *int             `gorm:"type:smallint"`
	PaymentTermsDays     int              `gorm:"not null"`
	TaxRate              *decimal.Decimal `gorm:"type:decimal(9,4)"`
	DiscountPercent      *decimal.Decimal `gorm:"type:decimal(9,4)"`
	Status               Status           `gorm:"type:text;not null;index:idx_recurring_profiles_due,priority:1"`
	MaxOccurrences       *int
	OccurrencesGenerated int `gorm:"not null"`
	LastGeneratedAt      *time.Time
	AutoSend             bool   `gorm:"not null"`
	Currency             string `gorm:"type:char(3);not null"`
	Version              int64  `gorm:"not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Items []LineItemTemplate `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

func (Profile) TableName() string { return "recurring_profiles" }

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

// CapReached reports whether MaxOccurrences is set and has been met.
func (p *Profile) CapReached() bool {
	return p.MaxOccurrences != nil && p.OccurrencesGenerated >= *p.MaxOccurrences
}

// PastEnd reports whether d falls after the inclusive EndDate.
func (p *Profile) PastEnd(d time.Time) bool {
	return p.EndDate != nil && d.After(*p.EndDate)
}

type LineItemTemplate struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProfileID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position    int             `gorm:"not null"`
	Description string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	VatRate     decimal.Decimal `gorm:"type:decimal(9,4);not null"`
}

func (LineItemTemplate) TableName() string { return "recurring_profile_items" }

func (t *LineItemTemplate) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
