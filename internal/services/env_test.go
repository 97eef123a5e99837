package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *models.MemoryRepo
	reference *models.MemoryReference
	events    *events.Recorder
	slots     *SlotService
	bookings  *BookingService
	tracker   *TrackerService
	ledger    *LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ref := models.NewMemoryReference()
	ref.PutCatalogService(&models.CatalogService{
		ID:       "svc-plumb",
		Title:    "Pipe Repair",
		Category: "Plumbing",
		Price:    150,
		Duration: 2,
	})
	return newTestEnvWith(t, ref)
}

func newTestEnvWith(t *testing.T, ref models.ReferenceStore) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := models.NewMemoryRepo()
	rec := &events.Recorder{}

	refSvc := NewReferenceService(ref, 16, time.Minute, logger)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake.NewNode: %v", err)
	}

	clock := func() time.Time { return testNow }
	ledger := NewLedgerService(store, 0.2, rec, logger)
	ledger.now = clock
	tracker := NewTrackerService(store, ledger, nil, rec, logger)
	tracker.now = clock
	bookings := NewBookingService(store, tracker, rec, logger)
	bookings.now = clock
	slots := NewSlotService(store, refSvc, node, rec, logger)
	slots.now = clock

	env := &testEnv{
		store:    store,
		events:   rec,
		slots:    slots,
		bookings: bookings,
		tracker:  tracker,
		ledger:   ledger,
	}
	if mem, ok := ref.(*models.MemoryReference); ok {
		env.reference = mem
	}
	return env
}

func reserveRequest(slot string) *ReserveRequest {
	return &ReserveRequest{
		CustomerID: "cust-1",
		ServiceID:  "svc-plumb",
		ContactInfo: models.ContactInfo{
			FullName:    "Jane Doe",
			PhoneNumber: "+91 98765 43210",
			Email:       "jane@example.com",
		},
		Location: models.BookingLocation{
			Country:         "India",
			State:           "Karnataka",
			City:            "Bengaluru",
			Area:            "Indiranagar",
			CompleteAddress: "12 100 Feet Road",
		},
		Schedule: ScheduleRequest{PreferredDate: "2024-01-02", TimeSlot: slot},
		Payment:  PaymentRequest{Method: "cash"},
	}
}

// walkBooking reserves a booking and moves it through each listed status.
func (e *testEnv) walkBooking(t *testing.T, slot string, empID int64, statuses ...models.BookingStatus) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := e.slots.Reserve(ctx, reserveRequest(slot), "customer")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for _, s := range statuses {
		b, err = e.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: string(s), EmpID: empID}, "admin")
		if err != nil {
			t.Fatalf("Transition to %s: %v", s, err)
		}
	}
	return b
}

// downReference fails every call the way an unreachable reference store does.
type downReference struct{}

func (downReference) err() error {
	return fmt.Errorf("%w: connection refused", models.ErrReferenceUnavailable)
}

func (d downReference) GetCatalogService(ctx context.Context, id string) (*models.CatalogService, error) {
	return nil, d.err()
}

func (d downReference) ListLocations(ctx context.Context, kind models.LocationKind, parentID *int64) ([]*models.Location, error) {
	return nil, d.err()
}

func (d downReference) CreateLocation(ctx context.Context, kind models.LocationKind, loc *models.Location) (*models.Location, error) {
	return nil, d.err()
}

func (d downReference) UpdateLocation(ctx context.Context, kind models.LocationKind, id int64, loc *models.Location) (*models.Location, error) {
	return nil, d.err()
}

func (d downReference) DeleteLocation(ctx context.Context, kind models.LocationKind, id int64) error {
	return d.err()
}
