package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var rates = Rates{Hourly: dec("100"), Daily: dec("900.50"), Monthly: dec("15000")}

func TestPrice(t *testing.T) {
	at := func(m time.Month, d, h, min int) time.Time { return time.Date(2026, m, d, h, min, 0, 0, time.UTC) }

	cases := []struct {
		name       string
		kind       domain.BookingKind
		start, end time.Time
		units      int64
		total      string
	}{
		{"hourly exact", domain.KindHourly, at(3, 1, 10, 0), at(3, 1, 12, 0), 2, "200"},
		{"hourly partial rounds up", domain.KindHourly, at(3, 1, 10, 0), at(3, 1, 12, 30), 3, "300"},
		{"hourly one minute", domain.KindHourly, at(3, 1, 10, 0), at(3, 1, 10, 1), 1, "100"},
		{"daily partial", domain.KindDaily, at(3, 1, 10, 0), at(3, 2, 11, 0), 2, "1801"},
		{"monthly within a month", domain.KindMonthly, at(3, 1, 0, 0), at(3, 20, 0, 0), 1, "15000"},
		{"monthly exact", domain.KindMonthly, at(3, 1, 0, 0), at(4, 1, 0, 0), 1, "15000"},
		{"monthly spill", domain.KindMonthly, at(3, 1, 0, 0), at(4, 1, 0, 1), 2, "30000"},
		{"monthly end of month clamps", domain.KindMonthly, at(1, 31, 0, 0), at(2, 28, 0, 0), 1, "15000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Price(rates, tc.kind, tc.start, tc.end, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.units, q.Units)
			assert.True(t, dec(tc.total).Equal(q.Total), "got %s", q.Total)
		})
	}
}

func TestPriceRoundsToCents(t *testing.T) {
	r := Rates{Hourly: dec("33.333")}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q, err := Price(r, domain.KindHourly, start, start.Add(3*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, "100", q.Total.String())

	r = Rates{Hourly: dec("0.125")}
	q, err = Price(r, domain.KindHourly, start, start.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, "0.13", q.Total.String())
}

func TestPriceRejects(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := Price(rates, domain.KindHourly, start, start, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Price(rates, domain.KindHourly, start, start.Add(-time.Hour), nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Price(Rates{Hourly: dec("100")}, domain.KindDaily, start, start.Add(time.Hour), nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = Price(rates, domain.BookingKind("WEEKLY"), start, start.Add(time.Hour), nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestPriceDynamicClamp(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	q, err := Price(rates, domain.KindHourly, start, end, &DynamicPrice{Recommended: dec("120"), Min: dec("80"), Max: dec("150")})
	require.NoError(t, err)
	assert.True(t, q.Dynamic)
	assert.Equal(t, "240", q.Total.String())

	q, err = Price(rates, domain.KindHourly, start, end, &DynamicPrice{Recommended: dec("500"), Min: dec("80"), Max: dec("150")})
	require.NoError(t, err)
	assert.Equal(t, "300", q.Total.String())

	q, err = Price(rates, domain.KindHourly, start, end, &DynamicPrice{Recommended: dec("-20"), Min: dec("-50"), Max: dec("150")})
	require.NoError(t, err)
	assert.True(t, q.Total.IsZero())

	// daily bookings ignore the hourly recommendation
	q, err = Price(rates, domain.KindDaily, start, end, &DynamicPrice{Recommended: dec("1"), Min: dec("1"), Max: dec("1")})
	require.NoError(t, err)
	assert.False(t, q.Dynamic)
	assert.Equal(t, "900.5", q.Total.String())
}

func TestHTTPRecommender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spots/spot-1/price", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`{"recommended_price":"110.50","min_price":"90","max_price":150}`))
	}))
	defer srv.Close()

	rec := NewHTTPRecommender(srv.URL, time.Second)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	dp, err := rec.Recommend(context.Background(), "spot-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "110.5", dp.Recommended.String())
	assert.Equal(t, "150", dp.Max.String())
}
