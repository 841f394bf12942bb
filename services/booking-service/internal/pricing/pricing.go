package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

const day = 24 * time.Hour

type Rates struct {
	Hourly  decimal.Decimal
	Daily   decimal.Decimal
	Monthly decimal.Decimal
}

func RatesOf(s *domain.Spot) Rates {
	return Rates{Hourly: s.HourlyPrice, Daily: s.DailyPrice, Monthly: s.MonthlyPrice}
}

func (r Rates) For(kind domain.BookingKind) decimal.Decimal {
	switch kind {
	case domain.KindHourly:
		return r.Hourly
	case domain.KindDaily:
		return r.Daily
	case domain.KindMonthly:
		return r.Monthly
	}
	return decimal.Zero
}

// DynamicPrice is an externally recommended hourly rate with its allowed band.
type DynamicPrice struct {
	Recommended decimal.Decimal `json:"recommended_price"`
	Min         decimal.Decimal `json:"min_price"`
	Max         decimal.Decimal `json:"max_price"`
}

// Rate clamps the recommendation into [max(min,0), max].
func (d DynamicPrice) Rate() decimal.Decimal {
	lo := decimal.Max(d.Min, decimal.Zero)
	r := d.Recommended
	if r.LessThan(lo) {
		r = lo
	}
	if r.GreaterThan(d.Max) {
		r = d.Max
	}
	return r
}

type Quote struct {
	Kind      domain.BookingKind
	Units     int64
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Dynamic   bool
}

// Price computes the booking total for [start, end). It has no side effects.
// dyn replaces the hourly rate when non-nil and usable.
func Price(r Rates, kind domain.BookingKind, start, end time.Time, dyn *DynamicPrice) (Quote, error) {
	if !kind.Valid() {
		return Quote{}, domain.Validationf("unknown booking kind %q", kind)
	}
	units, err := Units(kind, start, end)
	if err != nil {
		return Quote{}, err
	}
	rate := r.For(kind)
	if !rate.IsPositive() {
		return Quote{}, domain.Validationf("spot is not offered for %s bookings", kind)
	}
	q := Quote{Kind: kind, Units: units}
	if dyn != nil && kind == domain.KindHourly && dyn.Max.IsPositive() {
		rate = dyn.Rate()
		q.Dynamic = true
	}
	q.UnitPrice = rate
	q.Total = rate.Mul(decimal.NewFromInt(units)).Round(2)
	return q, nil
}

// Units is the number of billable units, each partial unit rounded up.
func Units(kind domain.BookingKind, start, end time.Time) (int64, error) {
	if !start.Before(end) {
		return 0, domain.Validationf("start must be before end")
	}
	d := end.Sub(start)
	switch kind {
	case domain.KindHourly:
		return ceilDiv(d, time.Hour), nil
	case domain.KindDaily:
		return ceilDiv(d, day), nil
	case domain.KindMonthly:
		return months(start, end), nil
	}
	return 0, domain.Validationf("unknown booking kind %q", kind)
}

func ceilDiv(d, unit time.Duration) int64 {
	n := int64(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}

// months is the smallest n >= 1 with addMonths(start, n) >= end.
func months(start, end time.Time) int64 {
	n := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	if n < 1 {
		n = 1
	}
	for addMonths(start, n).Before(end) {
		n++
	}
	for n > 1 && !addMonths(start, n-1).Before(end) {
		n--
	}
	return int64(n)
}

// addMonths keeps the day of month, clamped to the last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
