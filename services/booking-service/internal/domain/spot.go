package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Spot is owned by the lot catalogue; this service only reads its rates.
type Spot struct {
	ID                  string          `gorm:"primaryKey" json:"id"`
	LotID               string          `gorm:"index" json:"lot_id"`
	OwnerID             string          `gorm:"index" json:"owner_id"`
	Name                string          `json:"name"`
	HourlyPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"hourly_price"`
	DailyPrice          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"daily_price"`
	MonthlyPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"monthly_price"`
	AllowDynamicPricing bool            `json:"allow_dynamic_pricing"`
	Active              bool            `gorm:"index" json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Rate returns the per-unit price for kind; zero means the kind is not offered.
func (s *Spot) Rate(kind BookingKind) decimal.Decimal {
	switch kind {
	case KindHourly:
		return s.HourlyPrice
	case KindDaily:
		return s.DailyPrice
	case KindMonthly:
		return s.MonthlyPrice
	}
	return decimal.Zero
}
