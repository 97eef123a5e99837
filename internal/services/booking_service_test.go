package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/joshua-takyi/homex/internal/models"
)

func TestBookingFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 7,
		models.BookingConfirmed, models.BookingAssigned)
	if b.AssignedTo != 7 || b.WorkItemID == 0 {
		t.Fatalf("expected assignment with work item, got %+v", b)
	}

	svc, err := env.tracker.Get(ctx, b.WorkItemID)
	if err != nil {
		t.Fatalf("work item: %v", err)
	}
	if svc.Status != models.ServiceScheduled || svc.BookingID != b.ID || svc.ServiceType != "Plumbing" {
		t.Errorf("unexpected work item %+v", svc)
	}
	if svc.Customer.Name != "Jane Doe" || svc.EstimatedEarnings != 150 {
		t.Errorf("work item not derived from booking: %+v", svc)
	}
	upcoming, err := env.ledger.Upcoming(ctx, 7)
	if err != nil || len(upcoming) != 1 {
		t.Fatalf("expected one upcoming payment, got %v (%v)", upcoming, err)
	}

	b, err = env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "in_progress"}, "tech")
	if err != nil {
		t.Fatalf("in_progress: %v", err)
	}
	svc, _ = env.tracker.Get(ctx, b.WorkItemID)
	if svc.Status != models.ServiceInProgress {
		t.Errorf("expected work item in progress, got %s", svc.Status)
	}

	b, err = env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "completed", Notes: "replaced valve"}, "tech")
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if b.CompletedAt == nil || b.Payment.Status != models.BookingPaymentPaid || b.Payment.PaymentDate == nil {
		t.Errorf("completion fields not set: %+v", b)
	}

	svc, _ = env.tracker.Get(ctx, b.WorkItemID)
	if svc.Status != models.ServiceCompleted || svc.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("expected paid completed work item, got %s/%s", svc.Status, svc.PaymentStatus)
	}

	payment, err := env.store.GetPaymentByService(ctx, svc.ServiceID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.PaymentID != 1001 || payment.Amount != 150 || payment.Commission != 30 {
		t.Errorf("unexpected payment %+v", payment)
	}
	if payment.Hours != 2 || payment.BaseRate != 75 || payment.PaymentMethod != models.PaymentMethodCash {
		t.Errorf("unexpected payment defaults %+v", payment)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("projection not retired: %v", upcoming)
	}

	stats, err := env.ledger.TechnicianStats(ctx, 7)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.CompletedJobs != 1 || stats.Statistics.TotalEarnings != 150 || stats.Statistics.HoursWorked != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	// the slot is free again
	if _, err := env.slots.Reserve(ctx, reserveRequest("9:00 AM - 11:00 AM"), "customer"); err != nil {
		t.Errorf("slot not released after completion: %v", err)
	}

	want := map[string]bool{
		"booking.created": true, "booking.status_changed": true,
		"service.status_changed": true, "payment.materialized": true,
	}
	for _, k := range env.events.Keys() {
		delete(want, k)
	}
	if len(want) != 0 {
		t.Errorf("missing events %v", want)
	}
}

func TestBookingTransitionErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 0)

	if _, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "completed"}, "admin"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending->completed: expected invalid transition, got %v", err)
	}
	if _, err := env.bookings.Transition(ctx, "BKMISSING", &TransitionRequest{Status: "confirmed"}, "admin"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown booking: expected not found, got %v", err)
	}
	var verr *models.ValidationError
	if _, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "finished"}, "admin"); !errors.As(err, &verr) {
		t.Errorf("unknown status: expected validation error, got %v", err)
	}

	b = env.walkBooking(t, "11:00 AM - 1:00 PM", 0, models.BookingConfirmed)
	if _, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "assigned"}, "admin"); !errors.As(err, &verr) || verr.Fields[0].Field != "empId" {
		t.Errorf("assign without empId: expected empId validation error, got %v", err)
	}

	if _, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "cancelled"}, "admin"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "confirmed"}, "admin"); !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("cancelled->confirmed: expected terminal state, got %v", err)
	}
}

func TestBookingConcurrentTransitionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 0)

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := "confirmed"
			if i%2 == 1 {
				target = "cancelled"
			}
			_, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: target}, "admin")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, models.ErrInvalidTransition) && !errors.Is(err, models.ErrTerminalState) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := env.bookings.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// a confirm may still be followed by a cancel, never by a second confirm
	if wins < 1 || wins > 2 {
		t.Fatalf("expected one or two applied transitions, got %d", wins)
	}
	if len(got.StatusHistory) != wins+1 {
		t.Errorf("history has %d entries for %d transitions", len(got.StatusHistory), wins)
	}
}

func TestBookingCancelAfterAssignCancelsWorkItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 7, models.BookingConfirmed, models.BookingAssigned)

	b, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: "cancelled", Reason: "customer unreachable"}, "admin")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if b.CancellationReason != "customer unreachable" {
		t.Errorf("reason not stored: %q", b.CancellationReason)
	}
	svc, err := env.tracker.Get(ctx, b.WorkItemID)
	if err != nil {
		t.Fatalf("work item: %v", err)
	}
	if svc.Status != models.ServiceCancelled || svc.PaymentStatus != models.PaymentStatusCancelled {
		t.Errorf("work item not cancelled: %s/%s", svc.Status, svc.PaymentStatus)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("projection not retired: %v", upcoming)
	}
	if _, err := env.store.GetPaymentByService(ctx, svc.ServiceID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cancelled work item must not be paid, got %v", err)
	}
}

func TestBookingReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 7, models.BookingConfirmed)

	if _, err := env.bookings.AddReview(ctx, b.ID, &ReviewRequest{Score: 5}); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Errorf("review before completion: expected precondition failed, got %v", err)
	}

	b = env.walkBooking(t, "11:00 AM - 1:00 PM", 7,
		models.BookingConfirmed, models.BookingAssigned, models.BookingInProgress, models.BookingCompleted)

	var verr *models.ValidationError
	if _, err := env.bookings.AddReview(ctx, b.ID, &ReviewRequest{Score: 6}); !errors.As(err, &verr) {
		t.Errorf("score 6: expected validation error, got %v", err)
	}

	b, err := env.bookings.AddReview(ctx, b.ID, &ReviewRequest{Score: 4, Review: "on time"})
	if err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if b.Rating == nil || b.Rating.Score != 4 {
		t.Errorf("rating not stored: %+v", b.Rating)
	}
	svc, _ := env.tracker.Get(ctx, b.WorkItemID)
	if svc.Rating == nil || *svc.Rating != 4 || svc.Feedback != "on time" {
		t.Errorf("rating not forwarded: %+v", svc)
	}
	stats, err := env.ledger.TechnicianStats(ctx, 7)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Rating != 4 || stats.RatedServices != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBookingReviewNeedsCompletedWorkItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 7,
		models.BookingConfirmed, models.BookingAssigned, models.BookingInProgress, models.BookingCompleted)

	if _, err := env.tracker.Reschedule(ctx, b.WorkItemID, &RescheduleRequest{ScheduledDate: "2024-01-05", Time: "2:00 PM"}, "tech"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	if _, err := env.bookings.AddReview(ctx, b.ID, &ReviewRequest{Score: 5, Review: "great"}); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed, got %v", err)
	}
	stored, err := env.bookings.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Rating != nil {
		t.Errorf("booking rated although the work item refused: %+v", stored.Rating)
	}
	svc, _ := env.tracker.Get(ctx, b.WorkItemID)
	if svc.Rating != nil {
		t.Errorf("work item rated: %v", *svc.Rating)
	}
}

func TestBookingAdvanceWithCancelledWorkItem(t *testing.T) {
	tests := []struct {
		name string
		walk []models.BookingStatus
		to   models.BookingStatus
	}{
		{"start", []models.BookingStatus{models.BookingConfirmed, models.BookingAssigned}, models.BookingInProgress},
		{"complete", []models.BookingStatus{models.BookingConfirmed, models.BookingAssigned, models.BookingInProgress}, models.BookingCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			b := env.walkBooking(t, "9:00 AM - 11:00 AM", 7, tt.walk...)
			if _, err := env.tracker.Cancel(ctx, b.WorkItemID, TransitionOptions{Notes: "no show"}, "tech"); err != nil {
				t.Fatalf("Cancel: %v", err)
			}

			_, err := env.bookings.Transition(ctx, b.ID, &TransitionRequest{Status: string(tt.to)}, "admin")
			if !errors.Is(err, models.ErrPreconditionFailed) {
				t.Fatalf("expected precondition failed, got %v", err)
			}
			stored, _ := env.bookings.Get(ctx, b.ID)
			if stored.Status != b.Status {
				t.Errorf("booking moved to %s", stored.Status)
			}
			if _, err := env.store.GetPaymentByService(ctx, b.WorkItemID); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("cancelled work item was paid: %v", err)
			}
		})
	}
}

func TestBookingDeleteFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.walkBooking(t, "9:00 AM - 11:00 AM", 0)

	if err := env.bookings.Delete(ctx, b.ID, "admin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.bookings.Get(ctx, b.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := env.bookings.Delete(ctx, b.ID, "admin"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete: expected not found, got %v", err)
	}
	if _, err := env.slots.Reserve(ctx, reserveRequest("9:00 AM - 11:00 AM"), "customer"); err != nil {
		t.Errorf("slot not released after delete: %v", err)
	}
}

func TestBookingList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.walkBooking(t, "9:00 AM - 11:00 AM", 0)
	env.walkBooking(t, "11:00 AM - 1:00 PM", 0, models.BookingConfirmed)

	all, err := env.bookings.List(ctx, models.BookingFilter{CustomerID: "cust-1"})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 bookings, got %d (%v)", len(all), err)
	}
	confirmed, err := env.bookings.List(ctx, models.BookingFilter{Status: models.BookingConfirmed})
	if err != nil || len(confirmed) != 1 {
		t.Fatalf("expected 1 confirmed booking, got %d (%v)", len(confirmed), err)
	}
	var verr *models.ValidationError
	if _, err := env.bookings.List(ctx, models.BookingFilter{Status: "bogus"}); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
}
