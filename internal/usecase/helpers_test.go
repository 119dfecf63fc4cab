package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"booking-engine/internal/domain/entity"
	repoImpl "booking-engine/internal/interface/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type resourceCall struct {
	ResourceID uint
	Status     entity.ResourceStatus
}

type fakeResources struct {
	mu    sync.Mutex
	calls []resourceCall
	err   error
}

func (f *fakeResources) UpdateStatus(ctx context.Context, resourceID uint, status entity.ResourceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, resourceCall{ResourceID: resourceID, Status: status})
	return f.err
}

func (f *fakeResources) Calls() []resourceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resourceCall(nil), f.calls...)
}

type fakeEvents struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (f *fakeEvents) Publish(ctx context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return f.err
}

func (f *fakeEvents) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	created  []entity.TransactionRequest
	nextID   string
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]string{}}
}

func (f *fakeGateway) CreateTransaction(ctx context.Context, req entity.TransactionRequest) (*entity.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	f.statuses[f.nextID] = "PENDING"
	return &entity.Transaction{TransactionID: f.nextID, InvoiceID: req.InvoiceID, Amount: req.Amount, Status: "PENDING"}, nil
}

func (f *fakeGateway) PaymentLink(ctx context.Context, transactionID string) (*entity.PaymentLink, error) {
	return &entity.PaymentLink{PaymentURL: "https://pay.example/" + transactionID, TransactionID: transactionID}, nil
}

func (f *fakeGateway) Inquire(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	status, ok := f.statuses[transactionID]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "transaction", Key: transactionID}
	}
	return &entity.Transaction{TransactionID: transactionID, Status: status}, nil
}

func (f *fakeGateway) SetStatus(transactionID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[transactionID] = status
}

type fakeQuoter struct {
	in  entity.PriceInput
	err error
	req []entity.PriceQuoteRequest
}

func (f *fakeQuoter) Quote(ctx context.Context, req entity.PriceQuoteRequest) (entity.PriceInput, error) {
	f.req = append(f.req, req)
	return f.in, f.err
}

type testEnv struct {
	clock     *clockwork.FakeClock
	bookings  *repoImpl.MemoryBookingRepository
	audits    *repoImpl.MemoryAuditRepository
	resources *fakeResources
	events    *fakeEvents
	gateway   *fakeGateway
	metrics   *metrics.Metrics
	engine    *BookingEngine
	payments  *PaymentReconciler
	expiry    *ExpiryReconciler
}

func testPolicy() RetryPolicy {
	return RetryPolicy{Timeout: time.Second, MaxRetries: 2, InitialInterval: time.Millisecond}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	log := logger.NewNopLogger()
	m := metrics.NewNopMetrics()

	env := &testEnv{
		clock:     clock,
		bookings:  repoImpl.NewMemoryBookingRepository(clock),
		audits:    repoImpl.NewMemoryAuditRepository(),
		resources: &fakeResources{},
		events:    &fakeEvents{},
		gateway:   newFakeGateway(),
		metrics:   m,
	}
	dispatcher := NewSyncDispatcher(testPolicy(), log, m)
	effects := NewEffectFactory(env.resources, env.events, env.audits)
	env.engine = NewBookingEngine(env.bookings, env.audits, nil, effects, dispatcher, clock, log, m, EngineOptions{TrustClientPricing: true})
	env.payments = NewPaymentReconciler(env.bookings, env.gateway, effects, dispatcher, clock, log, m, "https://booking.example/callback")
	env.expiry = NewExpiryReconciler(env.bookings, env.audits, effects, dispatcher, clock, log, m, 0)
	return env
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func createInput(resourceID uint, start, end time.Time) CreateBookingInput {
	return CreateBookingInput{
		RenterID:   42,
		ResourceID: resourceID,
		Start:      start,
		End:        end,
		Pricing:    entity.PriceInput{TotalPrice: price("250")},
	}
}

// seed stores a booking in any state without going through the engine
func (env *testEnv) seed(resourceID uint, state entity.State, start, end time.Time) *entity.Booking {
	return env.bookings.Seed(&entity.Booking{
		RenterID:   42,
		ResourceID: resourceID,
		Period:     entity.Period{Start: start, End: end},
		Pricing:    entity.Pricing{TotalPrice: decimal.NewFromInt(250), ResourcePrice: decimal.NewFromInt(250), FinalPrice: decimal.NewFromInt(250)},
		State:      state,
	})
}
