package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

type BookingService struct {
	store     models.Store
	tracker   *TrackerService
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewBookingService(store models.Store, tracker *TrackerService, publisher events.Publisher, logger *slog.Logger) *BookingService {
	return &BookingService{
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		logger:    orDefault(logger),
		now:       time.Now,
	}
}

// TransitionRequest is the body of a booking status change. Fields other than
// Status only apply to the target that uses them.
type TransitionRequest struct {
	Status            string   `json:"status" validate:"required"`
	EmpID             int64    `json:"empId,omitempty" validate:"gte=0"`
	EstimatedEarnings *float64 `json:"estimatedEarnings,omitempty" validate:"omitempty,gte=0"`
	Reason            string   `json:"reason,omitempty" validate:"max=500"`
	Notes             string   `json:"notes,omitempty" validate:"max=1000"`
	ActualEarnings    *float64 `json:"actualEarnings,omitempty" validate:"omitempty,gte=0"`
	Hours             float64  `json:"hours,omitempty" validate:"gte=0"`
	Bonus             float64  `json:"bonus,omitempty" validate:"gte=0"`
	PaymentMethod     string   `json:"paymentMethod,omitempty" validate:"omitempty,oneof=credit_card cash bank_transfer"`
}

type ReviewRequest struct {
	Score  int    `json:"score" validate:"required,min=1,max=5"`
	Review string `json:"review,omitempty" validate:"max=1000"`
}

func (bs *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	return bs.store.GetBooking(ctx, id)
}

func (bs *BookingService) List(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.NewValidationError("status", "is not a valid booking status")
	}
	return bs.store.ListBookings(ctx, f)
}

// Transition moves a booking to req.Status. The write is a compare-and-set on
// the status read here; the linked work item and ledger effects run in the
// same transaction when the store supports one.
func (bs *BookingService) Transition(ctx context.Context, id string, req *TransitionRequest, actor string) (_ *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.Transition")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("booking.id", id), attribute.String("booking.to", req.Status))

	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	current, err := bs.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	to := models.BookingStatus(strings.TrimSpace(req.Status))
	if !to.Valid() {
		return nil, models.NewValidationError("status", "must be one of: pending confirmed assigned in_progress completed cancelled")
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrTerminalState, id, current.Status)
	}
	if !current.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: booking %s cannot go from %s to %s", models.ErrInvalidTransition, id, current.Status, to)
	}

	if to == models.BookingInProgress || to == models.BookingCompleted {
		if err := bs.requireOpenWorkItem(ctx, current, to); err != nil {
			return nil, err
		}
	}

	now := bs.now().UTC()
	patch := models.BookingPatch{From: current.Status, To: to, Actor: actor, At: now}

	var updated *models.Booking
	switch to {
	case models.BookingAssigned:
		if req.EmpID <= 0 {
			return nil, models.NewValidationError("empId", "is required to assign a booking")
		}
		workItemID, err := bs.store.NextID(ctx, models.SeqService)
		if err != nil {
			return nil, err
		}
		patch.AssignedTo = &req.EmpID
		patch.WorkItemID = &workItemID
		err = bs.store.WithTransaction(ctx, func(ctx context.Context) error {
			b, txErr := bs.store.UpdateBookingStatus(ctx, id, patch)
			if txErr != nil {
				return txErr
			}
			updated = b
			_, txErr = bs.tracker.create(ctx, workItemID, workItemRequest(b, req), b.ID)
			return txErr
		})
		if err != nil {
			return nil, err
		}

	case models.BookingInProgress:
		err = bs.store.WithTransaction(ctx, func(ctx context.Context) error {
			b, txErr := bs.store.UpdateBookingStatus(ctx, id, patch)
			if txErr != nil {
				return txErr
			}
			updated = b
			if b.WorkItemID == 0 {
				return nil
			}
			_, txErr = bs.tracker.advanceTo(ctx, b.WorkItemID, models.ServiceInProgress, TransitionOptions{Notes: req.Notes}, actor)
			return txErr
		})
		if err != nil {
			return nil, err
		}

	case models.BookingCompleted:
		paid := models.BookingPaymentPaid
		patch.CompletedAt = &now
		patch.PaymentStatus = &paid
		patch.PaymentDate = &now
		patch.ReleaseSlot = true
		err = bs.store.WithTransaction(ctx, func(ctx context.Context) error {
			b, txErr := bs.store.UpdateBookingStatus(ctx, id, patch)
			if txErr != nil {
				return txErr
			}
			updated = b
			if b.WorkItemID == 0 {
				return nil
			}
			_, txErr = bs.tracker.advanceTo(ctx, b.WorkItemID, models.ServiceCompleted, TransitionOptions{
				Notes:          req.Notes,
				ActualEarnings: req.ActualEarnings,
				CompletionTime: &now,
				Hours:          req.Hours,
				Bonus:          req.Bonus,
				PaymentMethod:  req.PaymentMethod,
			}, actor)
			return txErr
		})
		if err != nil {
			return nil, err
		}

	case models.BookingCancelled:
		reason := strings.TrimSpace(req.Reason)
		if reason != "" {
			patch.CancellationReason = &reason
		}
		patch.ReleaseSlot = true
		err = bs.store.WithTransaction(ctx, func(ctx context.Context) error {
			b, txErr := bs.store.UpdateBookingStatus(ctx, id, patch)
			if txErr != nil {
				return txErr
			}
			updated = b
			return bs.cancelWorkItem(ctx, b, reason, actor)
		})
		if err != nil {
			return nil, err
		}

	default:
		updated, err = bs.store.UpdateBookingStatus(ctx, id, patch)
		if err != nil {
			return nil, err
		}
	}

	bs.logger.InfoContext(ctx, "booking status changed", "booking_id", id, "from", current.Status, "to", to, "actor", actor)
	publish(ctx, bs.publisher, bs.logger, events.BookingStatusChanged, id, actor, map[string]any{
		"bookingId": id, "from": current.Status, "to": to, "workItemId": updated.WorkItemID,
	})
	return updated, nil
}

// requireOpenWorkItem rejects moving b forward when its linked work item was
// cancelled on its own; the booking and its work item would otherwise disagree.
func (bs *BookingService) requireOpenWorkItem(ctx context.Context, b *models.Booking, to models.BookingStatus) error {
	if b.WorkItemID == 0 {
		return nil
	}
	svc, err := bs.store.GetService(ctx, b.WorkItemID)
	if err != nil {
		return err
	}
	if svc.Status == models.ServiceCancelled {
		return fmt.Errorf("%w: booking %s cannot go to %s, work item %d is cancelled", models.ErrPreconditionFailed, b.ID, to, svc.ServiceID)
	}
	return nil
}

// cancelWorkItem cancels the work item linked to b unless it already reached a
// terminal state on its own.
func (bs *BookingService) cancelWorkItem(ctx context.Context, b *models.Booking, reason, actor string) error {
	if b.WorkItemID == 0 {
		return nil
	}
	svc, err := bs.store.GetService(ctx, b.WorkItemID)
	if err != nil {
		return err
	}
	if svc.Status.IsTerminal() {
		return nil
	}
	_, err = bs.tracker.Cancel(ctx, svc.ServiceID, TransitionOptions{Notes: reason}, actor)
	return err
}

// workItemRequest derives the technician's work item from an assigned booking.
func workItemRequest(b *models.Booking, req *TransitionRequest) *CreateServiceRequest {
	serviceType := "Other"
	if isServiceType(b.ServiceDetails.Category) {
		serviceType = b.ServiceDetails.Category
	}
	earnings := b.Payment.Amount
	if req.EstimatedEarnings != nil {
		earnings = *req.EstimatedEarnings
	}
	return &CreateServiceRequest{
		EmpID:       req.EmpID,
		Title:       b.ServiceDetails.Title,
		Description: b.SpecialInstructions,
		ServiceType: serviceType,
		Customer: models.Customer{
			Name:    b.ContactInfo.FullName,
			Address: b.Location.CompleteAddress,
			Phone:   b.ContactInfo.PhoneNumber,
			Email:   b.ContactInfo.Email,
		},
		ScheduledDate:     b.Schedule.PreferredDate.Format(models.DateLayout),
		Time:              b.Schedule.TimeSlot,
		Duration:          b.ServiceDetails.Duration,
		EstimatedEarnings: earnings,
		Notes:             req.Notes,
	}
}

// AddReview stores the customer's review on a completed booking and forwards
// the score to the linked work item.
func (bs *BookingService) AddReview(ctx context.Context, id string, req *ReviewRequest) (*models.Booking, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	current, err := bs.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	// the work item must accept the score before the booking records it
	if current.WorkItemID != 0 {
		svc, err := bs.store.GetService(ctx, current.WorkItemID)
		if err != nil {
			return nil, err
		}
		if svc.Status != models.ServiceCompleted {
			return nil, fmt.Errorf("%w: work item %d is %s, ratings need a completed service", models.ErrPreconditionFailed, svc.ServiceID, svc.Status)
		}
	}

	review := strings.TrimSpace(req.Review)
	var b *models.Booking
	err = bs.store.WithTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		b, txErr = bs.store.SetBookingRating(ctx, id, models.BookingRating{
			Score:     req.Score,
			Review:    review,
			CreatedAt: bs.now().UTC(),
		})
		if txErr != nil {
			return txErr
		}
		if b.WorkItemID == 0 {
			return nil
		}
		_, txErr = bs.tracker.Rate(ctx, b.WorkItemID, &RatingRequest{Rating: req.Score, Feedback: review})
		return txErr
	})
	if err != nil {
		return nil, err
	}
	bs.logger.InfoContext(ctx, "booking reviewed", "booking_id", id, "score", req.Score)
	return b, nil
}

func (bs *BookingService) Delete(ctx context.Context, id, actor string) error {
	if err := bs.store.DeleteBooking(ctx, id); err != nil {
		return err
	}
	bs.logger.InfoContext(ctx, "booking deleted", "booking_id", id, "actor", actor)
	return nil
}
