package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"

	"github.com/jonboulle/clockwork"
)

// MemoryBookingRepository implements the BookingRepository interface in process.
// A single mutex serializes writes, so conflict checks and writes are atomic.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	nextID   uint
	bookings map[uint]*entity.Booking
	byNumber map[string]uint
	byTxID   map[string]uint
}

// NewMemoryBookingRepository creates an in-memory booking repository
func NewMemoryBookingRepository(clock clockwork.Clock) *MemoryBookingRepository {
	return &MemoryBookingRepository{
		clock:    clock,
		bookings: make(map[uint]*entity.Booking),
		byNumber: make(map[string]uint),
		byTxID:   make(map[string]uint),
	}
}

var _ repository.BookingRepository = (*MemoryBookingRepository)(nil)

// Create stores a new booking after checking for blocking overlaps
func (r *MemoryBookingRepository) Create(ctx context.Context, b *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byNumber[b.Number]; taken {
		return entity.ErrDuplicateKey
	}
	if r.conflictLocked(b.ResourceID, b.Period.Start, b.Period.End, 0) {
		return &entity.ConflictError{ResourceID: b.ResourceID, Start: b.Period.Start, End: b.Period.End}
	}

	r.nextID++
	now := r.clock.Now()
	b.ID = r.nextID
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.State == nil {
		b.State = entity.Pending{}
	}

	r.bookings[b.ID] = b.Clone()
	r.byNumber[b.Number] = b.ID
	if b.TransactionID != nil {
		r.byTxID[*b.TransactionID] = b.ID
	}
	return nil
}

// Seed stores a booking as-is; used to load fixtures in any state
func (r *MemoryBookingRepository) Seed(b *entity.Booking) *entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == 0 {
		r.nextID++
		b.ID = r.nextID
	} else if b.ID > r.nextID {
		r.nextID = b.ID
	}
	if b.Version == 0 {
		b.Version = 1
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.clock.Now()
		b.UpdatedAt = b.CreatedAt
	}
	if b.Number == "" {
		b.Number = entity.NewBookingNumber()
	}
	if b.State == nil {
		b.State = entity.Pending{}
	}
	r.bookings[b.ID] = b.Clone()
	r.byNumber[b.Number] = b.ID
	if b.TransactionID != nil {
		r.byTxID[*b.TransactionID] = b.ID
	}
	return b.Clone()
}

// FindByID finds a booking by id
func (r *MemoryBookingRepository) FindByID(ctx context.Context, id uint) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "booking", Key: strconv.FormatUint(uint64(id), 10)}
	}
	return b.Clone(), nil
}

// FindByNumber finds a booking by booking number
func (r *MemoryBookingRepository) FindByNumber(ctx context.Context, number string) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "booking", Key: number}
	}
	return r.bookings[id].Clone(), nil
}

// FindByTransactionID finds a booking by its payment transaction reference
func (r *MemoryBookingRepository) FindByTransactionID(ctx context.Context, transactionID string) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTxID[transactionID]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "transaction", Key: transactionID}
	}
	return r.bookings[id].Clone(), nil
}

// FindByRenter lists a renter's bookings, newest first
func (r *MemoryBookingRepository) FindByRenter(ctx context.Context, renterID uint) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.RenterID == renterID }), nil
}

// FindByResource lists a resource's bookings, newest first
func (r *MemoryBookingRepository) FindByResource(ctx context.Context, resourceID uint) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.ResourceID == resourceID }), nil
}

// HasConflict reports a CONFIRMED or ONGOING booking overlapping [start, end)
func (r *MemoryBookingRepository) HasConflict(ctx context.Context, resourceID uint, start, end time.Time, excludeID uint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflictLocked(resourceID, start, end, excludeID), nil
}

// Update is a compare-and-set on Version
func (r *MemoryBookingRepository) Update(ctx context.Context, b *entity.Booking, opts repository.UpdateOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[b.ID]
	if !ok {
		return &entity.NotFoundError{Kind: "booking", Key: strconv.FormatUint(uint64(b.ID), 10)}
	}
	if stored.Version != b.Version {
		return entity.ErrConcurrencyConflict
	}
	if opts.RequireNoConflict && r.conflictLocked(b.ResourceID, b.Period.Start, b.Period.End, b.ID) {
		return &entity.ConflictError{ResourceID: b.ResourceID, Start: b.Period.Start, End: b.Period.End}
	}
	if b.TransactionID != nil {
		if owner, taken := r.byTxID[*b.TransactionID]; taken && owner != b.ID {
			return entity.ErrDuplicateKey
		}
	}

	if stored.TransactionID != nil {
		delete(r.byTxID, *stored.TransactionID)
	}
	b.Version++
	b.UpdatedAt = r.clock.Now()
	r.bookings[b.ID] = b.Clone()
	if b.TransactionID != nil {
		r.byTxID[*b.TransactionID] = b.ID
	}
	return nil
}

// FindExpired lists bookings in status whose scheduled end is at or before now, oldest end first
func (r *MemoryBookingRepository) FindExpired(ctx context.Context, status entity.BookingStatus, now time.Time, limit int) ([]*entity.Booking, error) {
	r.mu.RLock()
	var out []*entity.Booking
	for _, b := range r.bookings {
		if b.Status() == status && b.Period.EndedBy(now) {
			out = append(out, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.End.Equal(out[j].Period.End) {
			return out[i].ID < out[j].ID
		}
		return out[i].Period.End.Before(out[j].Period.End)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryBookingRepository) conflictLocked(resourceID uint, start, end time.Time, excludeID uint) bool {
	for _, b := range r.bookings {
		if b.ResourceID != resourceID || b.ID == excludeID {
			continue
		}
		if b.Status().Blocks() && b.Period.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepository) filter(keep func(*entity.Booking) bool) []*entity.Booking {
	r.mu.RLock()
	var out []*entity.Booking
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
