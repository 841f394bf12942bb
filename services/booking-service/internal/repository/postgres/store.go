package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Spots() repository.SpotRepository       { return &spotRepo{db: s.db} }
func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{db: s.db} }
func (s *Store) Payments() repository.PaymentRepository { return &paymentRepo{db: s.db} }
func (s *Store) Waitlist() repository.WaitlistRepository {
	return &waitlistRepo{db: s.db}
}

// Atomic runs fn in one transaction; nested calls become savepoints.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

var constraints = []struct{ name, sql string }{
	{"btree_gist", `CREATE EXTENSION IF NOT EXISTS btree_gist`},
	{"bookings_no_overlap", `DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
		ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
			EXCLUDE USING gist (spot_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&)
			WHERE (status IN ('PENDING', 'CONFIRMED', 'ACTIVE'));
	END IF;
END $$`},
	{"payments_one_open", `CREATE UNIQUE INDEX IF NOT EXISTS payments_one_open
		ON payments (booking_id) WHERE status IN ('CREATED', 'PENDING')`},
	{"payments_one_succeeded", `CREATE UNIQUE INDEX IF NOT EXISTS payments_one_succeeded
		ON payments (booking_id) WHERE status = 'SUCCEEDED'`},
}

// Migrate creates tables and then the database-level guards. A guard that
// cannot be installed (e.g. btree_gist unavailable) is logged, not fatal:
// the row locks taken by the service already serialise writers.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&domain.Spot{},
		&domain.Booking{},
		&domain.Payment{},
		&domain.PaymentAttempt{},
		&domain.WaitlistEntry{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, c := range constraints {
		if err := db.Exec(c.sql).Error; err != nil {
			log.Printf("[booking] migrate %s skipped: %v", c.name, err)
		}
	}
	return nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01": // exclusion_violation
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case "23505": // unique_violation
			return fmt.Errorf("%w: duplicate %s", domain.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

func strs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
