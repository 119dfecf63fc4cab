package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultAuditLimit = 100

// MongoAuditRepository implements the AuditRepository interface
type MongoAuditRepository struct {
	collection *mongo.Collection
}

// NewMongoAuditRepository creates a new MongoDB audit repository
func NewMongoAuditRepository(db *mongo.Database) repository.AuditRepository {
	collection := db.Collection("booking_audits")

	// Compound index for reading a booking's trail newest first
	ctx := context.Background()
	trailIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "bookingId", Value: 1},
			{Key: "at", Value: -1},
		},
	}
	actionIndex := mongo.IndexModel{
		Keys: bson.M{"action": 1},
	}
	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{trailIndex, actionIndex})

	return &MongoAuditRepository{
		collection: collection,
	}
}

// Append inserts an audit record
func (r *MongoAuditRepository) Append(ctx context.Context, record *entity.AuditRecord) error {
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return &entity.UpstreamError{Service: "audit store", Err: fmt.Errorf("failed to insert audit record: %w", err)}
	}
	return nil
}

// FindByBooking returns a booking's audit trail, newest first
func (r *MongoAuditRepository) FindByBooking(ctx context.Context, bookingID uint, limit int) ([]*entity.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	limit64 := int64(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"bookingId": bookingID}, &options.FindOptions{
		Limit: &limit64,
		Sort:  bson.D{{Key: "at", Value: -1}},
	})
	if err != nil {
		return nil, &entity.UpstreamError{Service: "audit store", Err: err}
	}
	defer cursor.Close(ctx)

	var records []*entity.AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, &entity.UpstreamError{Service: "audit store", Err: err}
	}
	return records, nil
}

// MemoryAuditRepository keeps audit records in process
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	records []*entity.AuditRecord
}

// NewMemoryAuditRepository creates an in-memory audit repository
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

// Append stores a copy of the record
func (r *MemoryAuditRepository) Append(ctx context.Context, record *entity.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	c := *record
	r.records = append(r.records, &c)
	return nil
}

// FindByBooking returns a booking's audit trail, newest first
func (r *MemoryAuditRepository) FindByBooking(ctx context.Context, bookingID uint, limit int) ([]*entity.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	r.mu.RLock()
	var out []*entity.AuditRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].BookingID == bookingID {
			c := *r.records[i]
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every record in insertion order
func (r *MemoryAuditRepository) All() []*entity.AuditRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}
