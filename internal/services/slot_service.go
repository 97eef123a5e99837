package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeSlots cover a business day when the catalog defines none.
var DefaultTimeSlots = []string{
	"9:00 AM - 11:00 AM",
	"11:00 AM - 1:00 PM",
	"1:00 PM - 3:00 PM",
	"3:00 PM - 5:00 PM",
	"5:00 PM - 7:00 PM",
}

type AvailabilityQuery struct {
	Date      string
	ServiceID string
	City      string
	Area      string
}

type Availability struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	BookedSlots    []string `json:"bookedSlots"`
	SuggestedSlot  string   `json:"suggestedSlot"`
	Degraded       bool     `json:"degraded"`
}

type ScheduleRequest struct {
	PreferredDate string `json:"preferredDate" validate:"required"`
	TimeSlot      string `json:"timeSlot" validate:"required"`
}

type PaymentRequest struct {
	Method   string  `json:"method" validate:"required,oneof=online cash card upi"`
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type ReserveRequest struct {
	CustomerID          string                 `json:"customerId,omitempty"`
	ServiceID           string                 `json:"serviceId,omitempty"`
	ServiceDetails      *models.ServiceDetails `json:"serviceDetails,omitempty"`
	ContactInfo         models.ContactInfo     `json:"contactInfo"`
	Location            models.BookingLocation `json:"location"`
	Schedule            ScheduleRequest        `json:"schedule"`
	SpecialInstructions string                 `json:"specialInstructions,omitempty" validate:"max=500"`
	Payment             PaymentRequest         `json:"payment"`
}

type SlotService struct {
	bookings  models.BookingRepo
	reference *ReferenceService
	ids       *snowflake.Node
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewSlotService(bookings models.BookingRepo, reference *ReferenceService, ids *snowflake.Node, publisher events.Publisher, logger *slog.Logger) *SlotService {
	return &SlotService{
		bookings:  bookings,
		reference: reference,
		ids:       ids,
		publisher: publisher,
		logger:    orDefault(logger),
		now:       time.Now,
	}
}

// NewBookingID returns a human-readable id unique across nodes.
func (ss *SlotService) NewBookingID() string {
	return "BK" + strings.ToUpper(ss.ids.Generate().Base36())
}

// candidateSlots resolves the slot set for a service. A reference failure
// yields the default set with degraded=true; an unknown service is an error.
func (ss *SlotService) candidateSlots(ctx context.Context, serviceID string) ([]string, bool, error) {
	if serviceID == "" {
		return DefaultTimeSlots, false, nil
	}
	svc, err := ss.reference.CatalogService(ctx, serviceID)
	switch {
	case err == nil:
		if len(svc.TimeSlots) > 0 {
			return svc.TimeSlots, false, nil
		}
		return DefaultTimeSlots, false, nil
	case errors.Is(err, models.ErrNotFound):
		return nil, false, err
	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	default:
		ss.logger.WarnContext(ctx, "reference store unavailable, using default slots", "service_id", serviceID, "error", err)
		return DefaultTimeSlots, true, nil
	}
}

func (ss *SlotService) QueryAvailability(ctx context.Context, q AvailabilityQuery) (_ *Availability, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.QueryAvailability")
	defer func() { endSpan(span, err) }()

	date, perr := ParseDate(q.Date)
	if perr != nil {
		return nil, models.NewValidationError("date", "must be a valid date (YYYY-MM-DD)")
	}
	span.SetAttributes(attribute.String("slot.date", date.Format(models.DateLayout)))

	candidates, degraded, err := ss.candidateSlots(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}

	booked, err := ss.bookings.BookedSlots(ctx, models.SlotQuery{Date: date, City: q.City, Area: q.Area})
	if err != nil {
		if !errors.Is(err, models.ErrStorageUnavailable) {
			return nil, err
		}
		ss.logger.WarnContext(ctx, "booking store unavailable, availability is unfiltered", "error", err)
		booked, degraded = nil, true
	}

	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		taken[models.NormalizeSlot(b)] = true
	}

	out := &Availability{
		Date:           date.Format(models.DateLayout),
		AvailableSlots: []string{},
		BookedSlots:    []string{},
		Degraded:       degraded,
	}
	for _, slot := range candidates {
		if taken[models.NormalizeSlot(slot)] {
			out.BookedSlots = append(out.BookedSlots, slot)
		} else {
			out.AvailableSlots = append(out.AvailableSlots, slot)
		}
	}
	if len(out.AvailableSlots) > 0 {
		out.SuggestedSlot = out.AvailableSlots[0]
	}
	span.SetAttributes(attribute.Int("slot.available", len(out.AvailableSlots)), attribute.Bool("slot.degraded", degraded))
	return out, nil
}

// Reserve validates req and inserts a pending booking. The insert is the
// admission check: a second active booking for the same slot key fails with
// ErrSlotConflict.
func (ss *SlotService) Reserve(ctx context.Context, req *ReserveRequest, actor string) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "SlotService.Reserve")
	defer func() { endSpan(span, err) }()

	normalizeReserve(req)

	verr := &models.ValidationError{}
	if err := validationFrom(verr, models.ValidateStruct(req)); err != nil {
		return nil, err
	}

	var date time.Time
	if req.Schedule.PreferredDate != "" {
		d, perr := ParseDate(req.Schedule.PreferredDate)
		switch {
		case perr != nil:
			verr.Add("schedule.preferredDate", "must be a valid date (YYYY-MM-DD)")
		case dayStart(d).Before(dayStart(ss.now())):
			verr.Add("schedule.preferredDate", "must not be in the past")
		default:
			date = dayStart(d)
		}
	}

	details, slots, err := ss.resolveService(ctx, req, verr)
	if err != nil {
		return nil, err
	}
	if req.Schedule.TimeSlot != "" && slots != nil && !containsSlot(slots, req.Schedule.TimeSlot) {
		verr.Add("schedule.timeSlot", "is not offered for this service")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	amount := req.Payment.Amount
	if amount == 0 {
		amount = details.Price
	}
	currency := strings.ToUpper(req.Payment.Currency)
	if currency == "" {
		currency = models.DefaultCurrency
	}

	now := ss.now().UTC()
	booking := &models.Booking{
		ID:                  ss.NewBookingID(),
		CustomerID:          req.CustomerID,
		ServiceID:           req.ServiceID,
		ServiceDetails:      details,
		ContactInfo:         req.ContactInfo,
		Location:            req.Location,
		Schedule:            models.BookingSchedule{PreferredDate: date, TimeSlot: req.Schedule.TimeSlot},
		SpecialInstructions: req.SpecialInstructions,
		Payment: models.BookingPayment{
			Method:   req.Payment.Method,
			Status:   models.BookingPaymentPending,
			Amount:   amount,
			Currency: currency,
		},
		Status:     models.BookingPending,
		ActiveSlot: models.SlotKey(date, req.Schedule.TimeSlot, req.Location.City, req.Location.Area),
		StatusHistory: []models.StatusChange{
			{To: string(models.BookingPending), Actor: actor, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("booking.id", booking.ID), attribute.String("booking.slot", booking.ActiveSlot))

	if err := ss.bookings.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, models.ErrSlotConflict) {
			ss.logger.InfoContext(ctx, "slot conflict", "slot", booking.ActiveSlot)
		}
		return nil, err
	}

	ss.logger.InfoContext(ctx, "booking reserved", "booking_id", booking.ID, "slot", booking.ActiveSlot)
	publish(ctx, ss.publisher, ss.logger, events.BookingCreated, booking.ID, actor, booking)
	return booking, nil
}

// resolveService returns the snapshot stored on the booking and the slots the
// service offers. A catalog entry wins over inline details when both are sent.
func (ss *SlotService) resolveService(ctx context.Context, req *ReserveRequest, verr *models.ValidationError) (models.ServiceDetails, []string, error) {
	if req.ServiceID == "" {
		if req.ServiceDetails == nil {
			verr.Add("serviceId", "serviceId or serviceDetails is required")
			return models.ServiceDetails{}, nil, nil
		}
		return *req.ServiceDetails, DefaultTimeSlots, nil
	}

	svc, err := ss.reference.CatalogService(ctx, req.ServiceID)
	if errors.Is(err, models.ErrNotFound) {
		verr.Add("serviceId", "does not exist")
		return models.ServiceDetails{}, nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return models.ServiceDetails{}, nil, ctx.Err()
		}
		if errors.Is(err, models.ErrReferenceUnavailable) {
			return models.ServiceDetails{}, nil, err
		}
		return models.ServiceDetails{}, nil, fmt.Errorf("%w: %v", models.ErrReferenceUnavailable, err)
	}

	slots := DefaultTimeSlots
	if len(svc.TimeSlots) > 0 {
		slots = svc.TimeSlots
	}
	return svc.Snapshot(), slots, nil
}

func normalizeReserve(req *ReserveRequest) {
	trim := func(s *string) { *s = strings.TrimSpace(*s) }
	trim(&req.ServiceID)
	trim(&req.ContactInfo.FullName)
	trim(&req.ContactInfo.PhoneNumber)
	trim(&req.ContactInfo.Email)
	req.ContactInfo.Email = strings.ToLower(req.ContactInfo.Email)
	trim(&req.Location.Country)
	trim(&req.Location.State)
	trim(&req.Location.City)
	trim(&req.Location.Area)
	trim(&req.Location.CompleteAddress)
	trim(&req.Schedule.PreferredDate)
	trim(&req.Schedule.TimeSlot)
	trim(&req.SpecialInstructions)
	req.Payment.Method = strings.ToLower(strings.TrimSpace(req.Payment.Method))
}

func containsSlot(slots []string, slot string) bool {
	want := models.NormalizeSlot(slot)
	for _, s := range slots {
		if models.NormalizeSlot(s) == want {
			return true
		}
	}
	return false
}
