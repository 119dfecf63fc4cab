package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBookingRepository implements the BookingRepository interface on Postgres.
// Writes that must be atomic with a conflict check take a transaction-scoped
// advisory lock on the resource id.
type GormBookingRepository struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// NewGormBookingRepository creates a new GORM booking repository. Row
// timestamps come from clock.
func NewGormBookingRepository(db *gorm.DB, clock clockwork.Clock) repository.BookingRepository {
	return &GormBookingRepository{
		db:    db,
		clock: clock,
	}
}

// Bookings GORM model for database mapping
type Bookings struct {
	ID                 uint            `gorm:"column:id;primaryKey"`
	BookingNumber      string          `gorm:"column:booking_number;size:20;uniqueIndex"`
	RenterID           uint            `gorm:"column:renter_id;index"`
	ResourceID         uint            `gorm:"column:resource_id;index:idx_bookings_resource_period,priority:1"`
	OperatorID         *uint           `gorm:"column:operator_id"`
	WithOperator       bool            `gorm:"column:with_operator"`
	StartAt            time.Time       `gorm:"column:start_at;index:idx_bookings_resource_period,priority:2"`
	EndAt              time.Time       `gorm:"column:end_at;index:idx_bookings_status_end,priority:2"`
	ActualStartAt      *time.Time      `gorm:"column:actual_start_at"`
	ActualEndAt        *time.Time      `gorm:"column:actual_end_at"`
	Status             string          `gorm:"column:status;size:16;index:idx_bookings_status_end,priority:1"`
	PickupAddress      string          `gorm:"column:pickup_address"`
	PickupLatitude     *float64        `gorm:"column:pickup_latitude"`
	PickupLongitude    *float64        `gorm:"column:pickup_longitude"`
	DropoffAddress     string          `gorm:"column:dropoff_address"`
	DropoffLatitude    *float64        `gorm:"column:dropoff_latitude"`
	DropoffLongitude   *float64        `gorm:"column:dropoff_longitude"`
	ResourcePrice      decimal.Decimal `gorm:"column:resource_price;type:numeric(12,2)"`
	OperatorPrice      decimal.Decimal `gorm:"column:operator_price;type:numeric(12,2)"`
	TotalPrice         decimal.Decimal `gorm:"column:total_price;type:numeric(12,2)"`
	DiscountAmount     decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2)"`
	FinalPrice         decimal.Decimal `gorm:"column:final_price;type:numeric(12,2)"`
	PaymentCompleted   bool            `gorm:"column:payment_completed"`
	TransactionID      *string         `gorm:"column:transaction_id;uniqueIndex"`
	CancellationReason *string         `gorm:"column:cancellation_reason"`
	CancelledAt        *time.Time      `gorm:"column:cancelled_at"`
	SpecialRequests    string          `gorm:"column:special_requests"`
	Notes              string          `gorm:"column:notes"`
	Version            int64           `gorm:"column:version;not null;default:1"`
	CreatedAt          time.Time       `gorm:"column:created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at"`
}

// TableName overrides the default table name
func (Bookings) TableName() string {
	return "bookings"
}

// MigrateBookings creates or updates the bookings table
func MigrateBookings(db *gorm.DB) error {
	return db.AutoMigrate(&Bookings{})
}

// Create inserts a new booking if no blocking booking overlaps its period
func (r *GormBookingRepository) Create(ctx context.Context, b *entity.Booking) error {
	model := toBookingModel(b)
	model.Version = 1
	now := r.clock.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockResource(tx, b.ResourceID); err != nil {
			return err
		}
		conflict, err := hasConflict(tx, b.ResourceID, b.Period.Start, b.Period.End, 0)
		if err != nil {
			return err
		}
		if conflict {
			return &entity.ConflictError{ResourceID: b.ResourceID, Start: b.Period.Start, End: b.Period.End}
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return translateError(err)
	}

	// Update the entity with the generated ID
	b.ID = model.ID
	b.Version = model.Version
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID finds a booking by id
func (r *GormBookingRepository) FindByID(ctx context.Context, id uint) (*entity.Booking, error) {
	return r.findOne(ctx, "booking", strconv.FormatUint(uint64(id), 10), "id = ?", id)
}

// FindByNumber finds a booking by booking number
func (r *GormBookingRepository) FindByNumber(ctx context.Context, number string) (*entity.Booking, error) {
	return r.findOne(ctx, "booking", number, "booking_number = ?", number)
}

// FindByTransactionID finds a booking by payment transaction reference
func (r *GormBookingRepository) FindByTransactionID(ctx context.Context, transactionID string) (*entity.Booking, error) {
	return r.findOne(ctx, "transaction", transactionID, "transaction_id = ?", transactionID)
}

// FindByRenter lists a renter's bookings, newest first
func (r *GormBookingRepository) FindByRenter(ctx context.Context, renterID uint) ([]*entity.Booking, error) {
	return r.findMany(r.db.WithContext(ctx).Where("renter_id = ?", renterID).Order("created_at DESC"))
}

// FindByResource lists a resource's bookings, newest first
func (r *GormBookingRepository) FindByResource(ctx context.Context, resourceID uint) ([]*entity.Booking, error) {
	return r.findMany(r.db.WithContext(ctx).Where("resource_id = ?", resourceID).Order("created_at DESC"))
}

// HasConflict reports a CONFIRMED or ONGOING booking overlapping [start, end)
func (r *GormBookingRepository) HasConflict(ctx context.Context, resourceID uint, start, end time.Time, excludeID uint) (bool, error) {
	conflict, err := hasConflict(r.db.WithContext(ctx), resourceID, start, end, excludeID)
	if err != nil {
		return false, translateError(err)
	}
	return conflict, nil
}

// Update writes the booking only if the stored version still matches
func (r *GormBookingRepository) Update(ctx context.Context, b *entity.Booking, opts repository.UpdateOptions) error {
	now := r.clock.Now().UTC()
	write := func(tx *gorm.DB) error {
		result := tx.Model(&Bookings{}).
			Where("id = ? AND version = ?", b.ID, b.Version).
			Updates(updateColumns(b, now))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return entity.ErrConcurrencyConflict
		}
		return nil
	}

	var err error
	if opts.RequireNoConflict {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockResource(tx, b.ResourceID); err != nil {
				return err
			}
			conflict, err := hasConflict(tx, b.ResourceID, b.Period.Start, b.Period.End, b.ID)
			if err != nil {
				return err
			}
			if conflict {
				return &entity.ConflictError{ResourceID: b.ResourceID, Start: b.Period.Start, End: b.Period.End}
			}
			return write(tx)
		})
	} else {
		err = write(r.db.WithContext(ctx))
	}
	if err != nil {
		return translateError(err)
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}

// FindExpired lists bookings in status whose scheduled end is at or before now
func (r *GormBookingRepository) FindExpired(ctx context.Context, status entity.BookingStatus, now time.Time, limit int) ([]*entity.Booking, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND end_at <= ?", string(status), now).
		Order("end_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.findMany(q)
}

func (r *GormBookingRepository) findOne(ctx context.Context, kind, key string, query string, args ...interface{}) (*entity.Booking, error) {
	var model Bookings
	err := r.db.WithContext(ctx).Where(query, args...).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &entity.NotFoundError{Kind: kind, Key: key}
		}
		return nil, translateError(err)
	}
	return toBookingEntity(&model)
}

func (r *GormBookingRepository) findMany(q *gorm.DB) ([]*entity.Booking, error) {
	var models []Bookings
	if err := q.Find(&models).Error; err != nil {
		return nil, translateError(err)
	}

	// Convert to domain entities
	entities := make([]*entity.Booking, 0, len(models))
	for i := range models {
		b, err := toBookingEntity(&models[i])
		if err != nil {
			return nil, err
		}
		entities = append(entities, b)
	}
	return entities, nil
}

func lockResource(tx *gorm.DB, resourceID uint) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(resourceID)).Error
}

func hasConflict(tx *gorm.DB, resourceID uint, start, end time.Time, excludeID uint) (bool, error) {
	q := tx.Model(&Bookings{}).
		Where("resource_id = ? AND status IN ?", resourceID, blockingStatuses()).
		Where("start_at < ? AND end_at > ?", end, start)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func blockingStatuses() []string {
	out := make([]string, len(entity.BlockingStatuses))
	for i, s := range entity.BlockingStatuses {
		out[i] = string(s)
	}
	return out
}

// translateError maps driver errors onto domain errors; domain errors pass through
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrConflict), errors.Is(err, entity.ErrConcurrencyConflict),
		errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrValidation):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", entity.ErrDuplicateKey, err)
	}
	return &entity.UpstreamError{Service: "booking store", Err: err}
}

func updateColumns(b *entity.Booking, now time.Time) map[string]interface{} {
	cols := entity.FlattenState(b.State)
	return map[string]interface{}{
		"status":              string(cols.Status),
		"actual_start_at":     cols.ActualStart,
		"actual_end_at":       cols.ActualEnd,
		"cancellation_reason": cols.CancellationReason,
		"cancelled_at":        cols.CancelledAt,
		"payment_completed":   b.PaymentCompleted,
		"transaction_id":      b.TransactionID,
		"notes":               b.Notes,
		"version":             b.Version + 1,
		"updated_at":          now,
	}
}

func toBookingModel(b *entity.Booking) Bookings {
	cols := entity.FlattenState(b.State)
	return Bookings{
		ID:                 b.ID,
		BookingNumber:      b.Number,
		RenterID:           b.RenterID,
		ResourceID:         b.ResourceID,
		OperatorID:         b.OperatorID,
		WithOperator:       b.WithOperator,
		StartAt:            b.Period.Start,
		EndAt:              b.Period.End,
		ActualStartAt:      cols.ActualStart,
		ActualEndAt:        cols.ActualEnd,
		Status:             string(cols.Status),
		PickupAddress:      b.Pickup.Address,
		PickupLatitude:     b.Pickup.Latitude,
		PickupLongitude:    b.Pickup.Longitude,
		DropoffAddress:     b.Dropoff.Address,
		DropoffLatitude:    b.Dropoff.Latitude,
		DropoffLongitude:   b.Dropoff.Longitude,
		ResourcePrice:      b.Pricing.ResourcePrice,
		OperatorPrice:      b.Pricing.OperatorPrice,
		TotalPrice:         b.Pricing.TotalPrice,
		DiscountAmount:     b.Pricing.DiscountAmount,
		FinalPrice:         b.Pricing.FinalPrice,
		PaymentCompleted:   b.PaymentCompleted,
		TransactionID:      b.TransactionID,
		CancellationReason: cols.CancellationReason,
		CancelledAt:        cols.CancelledAt,
		SpecialRequests:    b.SpecialRequests,
		Notes:              b.Notes,
		Version:            b.Version,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func toBookingEntity(m *Bookings) (*entity.Booking, error) {
	state, err := entity.StateFromColumns(entity.StateColumns{
		Status:             entity.BookingStatus(m.Status),
		ActualStart:        m.ActualStartAt,
		ActualEnd:          m.ActualEndAt,
		CancellationReason: m.CancellationReason,
		CancelledAt:        m.CancelledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("booking %d has inconsistent state: %w", m.ID, err)
	}
	return &entity.Booking{
		ID:           m.ID,
		Number:       m.BookingNumber,
		RenterID:     m.RenterID,
		ResourceID:   m.ResourceID,
		OperatorID:   m.OperatorID,
		WithOperator: m.WithOperator,
		Period:       entity.Period{Start: m.StartAt, End: m.EndAt},
		Pickup: entity.Location{
			Address:   m.PickupAddress,
			Latitude:  m.PickupLatitude,
			Longitude: m.PickupLongitude,
		},
		Dropoff: entity.Location{
			Address:   m.DropoffAddress,
			Latitude:  m.DropoffLatitude,
			Longitude: m.DropoffLongitude,
		},
		SpecialRequests: m.SpecialRequests,
		Notes:           m.Notes,
		Pricing: entity.Pricing{
			ResourcePrice:  m.ResourcePrice,
			OperatorPrice:  m.OperatorPrice,
			TotalPrice:     m.TotalPrice,
			DiscountAmount: m.DiscountAmount,
			FinalPrice:     m.FinalPrice,
		},
		State:            state,
		PaymentCompleted: m.PaymentCompleted,
		TransactionID:    m.TransactionID,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}
