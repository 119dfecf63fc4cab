package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

var gormNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

var bookingColumns = []string{
	"id", "booking_number", "renter_id", "resource_id", "start_at", "end_at",
	"status", "total_price", "final_price", "payment_completed", "transaction_id",
	"version", "created_at", "updated_at",
}

func TestGormFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow(
			11, "BK-0A1B2C3D", 42, 7, start, start.Add(24*time.Hour),
			"CONFIRMED", "250.00", "225.00", true, "trx-1",
			4, start.Add(-time.Hour), start.Add(-time.Hour)))

	b, err := repo.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, uint(11), b.ID)
	assert.Equal(t, "BK-0A1B2C3D", b.Number)
	assert.Equal(t, entity.StatusConfirmed, b.Status())
	assert.Equal(t, "225", b.Pricing.FinalPrice.String())
	assert.Equal(t, "trx-1", *b.TransactionID)
	assert.Equal(t, int64(4), b.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormFindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	_, err := repo.FindByID(context.Background(), 99)
	var nf *entity.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "99", nf.Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormFindByIDInconsistentRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// an ONGOING row without actual_start_at cannot be mapped to a state
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow(
			12, "BK-0A1B2C3E", 42, 7, start, start.Add(time.Hour),
			"ONGOING", "250.00", "250.00", false, nil,
			2, start, start))

	_, err := repo.FindByID(context.Background(), 12)
	assert.Error(t, err)
}

func TestGormStoreFailureIsUpstream(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings"`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.HasConflict(context.Background(), 7, time.Now(), time.Now().Add(time.Hour), 0)
	assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUpdateCompareAndSet(t *testing.T) {
	b := &entity.Booking{
		ID:         11,
		ResourceID: 7,
		Period:     entity.Period{Start: time.Now().Add(time.Hour), End: time.Now().Add(2 * time.Hour)},
		State:      entity.Cancelled{Reason: "Cancelled by user", CancelledAt: time.Now()},
		Version:    3,
	}

	t.Run("applied", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
		mock.ExpectExec(`UPDATE "bookings" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		c := b.Clone()
		require.NoError(t, repo.Update(context.Background(), c, repository.UpdateOptions{}))
		assert.Equal(t, int64(4), c.Version)
		assert.Equal(t, gormNow, c.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
		mock.ExpectExec(`UPDATE "bookings" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		c := b.Clone()
		err := repo.Update(context.Background(), c, repository.UpdateOptions{})
		assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)
		assert.Equal(t, int64(3), c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormConfirmChecksConflictInsideTransaction(t *testing.T) {
	b := &entity.Booking{
		ID:         11,
		ResourceID: 7,
		Period:     entity.Period{Start: time.Now().Add(time.Hour), End: time.Now().Add(2 * time.Hour)},
		State:      entity.Confirmed{},
		Version:    1,
	}

	t.Run("overlap rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		err := repo.Update(context.Background(), b.Clone(), repository.UpdateOptions{RequireNoConflict: true})
		assert.ErrorIs(t, err, entity.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("free period commits", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`UPDATE "bookings" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		c := b.Clone()
		require.NoError(t, repo.Update(context.Background(), c, repository.UpdateOptions{RequireNoConflict: true}))
		assert.Equal(t, int64(2), c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFindExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormBookingRepository(db, clockwork.NewFakeClockAt(gormNow))
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE status = \$1 AND end_at <= \$2 ORDER BY end_at ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow(
			5, "BK-0000000A", 42, 7, now.Add(-2*time.Hour), now.Add(-time.Hour),
			"PENDING", "100.00", "100.00", false, nil,
			1, now.Add(-3*time.Hour), now.Add(-3*time.Hour)))

	out, err := repo.FindExpired(context.Background(), entity.StatusPending, now, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, entity.StatusPending, out[0].Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}
