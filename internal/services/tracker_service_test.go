package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/joshua-takyi/homex/internal/models"
)

func serviceRequest(empID int64, date string) *CreateServiceRequest {
	return &CreateServiceRequest{
		EmpID:             empID,
		Title:             "Kitchen sink leak",
		ServiceType:       "Plumbing",
		Customer:          models.Customer{Name: "Jane Doe", Phone: "+1 555 123 4567", Address: "1 Main St"},
		ScheduledDate:     date,
		Time:              "10:00 AM",
		Duration:          2,
		EstimatedEarnings: 150,
	}
}

func (e *testEnv) completedService(t *testing.T, empID int64, opts TransitionOptions) *models.Service {
	t.Helper()
	ctx := context.Background()
	svc, err := e.tracker.Create(ctx, serviceRequest(empID, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.tracker.Confirm(ctx, svc.ServiceID, TransitionOptions{}, "tech"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := e.tracker.Start(ctx, svc.ServiceID, TransitionOptions{}, "tech"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc, err = e.tracker.Complete(ctx, svc.ServiceID, opts, "tech")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return svc
}

func TestCreateServiceValidation(t *testing.T) {
	env := newTestEnv(t)
	req := &CreateServiceRequest{ServiceType: "Gardening", ScheduledDate: "tomorrow", Priority: "urgent"}

	_, err := env.tracker.Create(context.Background(), req)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"empId", "title", "time", "priority", "serviceType", "customer.name", "scheduledDate"} {
		if !fields[want] {
			t.Errorf("expected field %q in %v", want, verr.Fields)
		}
	}
}

func TestCreateServiceDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := serviceRequest(7, "2024-01-02")
	req.Duration = 0

	svc, err := env.tracker.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if svc.ServiceID != 3001 || svc.Duration != 1 || svc.Priority != "medium" {
		t.Errorf("unexpected defaults %+v", svc)
	}
	if svc.Status != models.ServiceScheduled || svc.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("unexpected initial status %s/%s", svc.Status, svc.PaymentStatus)
	}

	upcoming, err := env.ledger.Upcoming(ctx, 7)
	if err != nil || len(upcoming) != 1 {
		t.Fatalf("expected one upcoming payment, got %v (%v)", upcoming, err)
	}
	if upcoming[0].UpcomingID != 2001 || upcoming[0].EstimatedAmount != 150 || upcoming[0].Status != models.UpcomingScheduled {
		t.Errorf("unexpected projection %+v", upcoming[0])
	}

	activities, err := env.tracker.Activities(ctx, 7, 0)
	if err != nil || len(activities) != 1 {
		t.Fatalf("expected one activity, got %v (%v)", activities, err)
	}
	if activities[0].Message != "Scheduled Plumbing service for Jane Doe" {
		t.Errorf("unexpected activity message %q", activities[0].Message)
	}
}

func TestServiceTransitionNotesAndPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := svc.ServiceID

	if _, err := env.tracker.Confirm(ctx, id, TransitionOptions{Notes: "called customer"}, "tech"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	upcoming, _ := env.ledger.Upcoming(ctx, 7)
	if len(upcoming) != 1 || upcoming[0].Status != models.UpcomingConfirmed {
		t.Errorf("projection not refreshed: %+v", upcoming)
	}
	if _, err := env.tracker.Start(ctx, id, TransitionOptions{Notes: "valve seized"}, "tech"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	earnings := 200.0
	svc, err = env.tracker.Complete(ctx, id, TransitionOptions{Notes: "all good", ActualEarnings: &earnings, Bonus: 10}, "tech")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if svc.CompletedDate == nil || svc.ActualEarnings == nil || *svc.ActualEarnings != 200 {
		t.Errorf("completion fields not set: %+v", svc)
	}

	details, err := env.tracker.Details(ctx, id)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if len(details.Notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(details.Notes))
	}
	if details.Notes[0].Note != "Service completed: all good" {
		t.Errorf("unexpected latest note %q", details.Notes[0].Note)
	}
	if details.Notes[1].Type != models.NoteTechnical || details.Notes[1].Note != "Service started: valve seized" {
		t.Errorf("unexpected start note %+v", details.Notes[1])
	}
	if details.Service.Notes != "Service completed: all good" {
		t.Errorf("notes summary not mirrored: %q", details.Service.Notes)
	}

	payment, err := env.store.GetPaymentByService(ctx, id)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Amount != 200 || payment.Commission != 40 || payment.Bonus != 10 || payment.BaseRate != 100 {
		t.Errorf("unexpected payment %+v", payment)
	}

	activities, _ := env.tracker.Activities(ctx, 7, 0)
	var found bool
	for _, a := range activities {
		if a.Type == models.ActivityServiceCompleted && a.Message == "Completed Plumbing service for Jane Doe" {
			found = true
		}
	}
	if !found {
		t.Errorf("completion activity missing from %+v", activities)
	}
}

func TestServiceTransitionGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.tracker.Complete(ctx, svc.ServiceID, TransitionOptions{}, "tech"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("scheduled->completed: expected invalid transition, got %v", err)
	}
	if _, err := env.tracker.Start(ctx, 9999, TransitionOptions{}, "tech"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown service: expected not found, got %v", err)
	}
	var verr *models.ValidationError
	if _, err := env.tracker.Transition(ctx, svc.ServiceID, "paused", TransitionOptions{}, "tech"); !errors.As(err, &verr) {
		t.Errorf("unknown status: expected validation error, got %v", err)
	}

	if _, err := env.tracker.Cancel(ctx, svc.ServiceID, TransitionOptions{Notes: "no access"}, "tech"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := env.tracker.Confirm(ctx, svc.ServiceID, TransitionOptions{}, "tech"); !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("cancelled->confirmed: expected terminal state, got %v", err)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("projection not retired on cancel: %v", upcoming)
	}
}

func TestRatingAverage(t *testing.T) {
	tests := []struct {
		ratings []int
		want    float64
	}{
		{[]int{4, 5, 3}, 4.0},
		{[]int{4, 5, 4}, 4.3},
		{[]int{5}, 5.0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ratings), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			for _, r := range tt.ratings {
				svc := env.completedService(t, 7, TransitionOptions{})
				if _, err := env.tracker.Rate(ctx, svc.ServiceID, &RatingRequest{Rating: r}); err != nil {
					t.Fatalf("Rate: %v", err)
				}
			}
			stats, err := env.ledger.TechnicianStats(ctx, 7)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.Rating != tt.want {
				t.Errorf("expected rating %v, got %v", tt.want, stats.Rating)
			}
			if stats.CompletedJobs != len(tt.ratings) {
				t.Errorf("expected %d completed jobs, got %d", len(tt.ratings), stats.CompletedJobs)
			}
		})
	}
}

func TestRateRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.tracker.Rate(ctx, svc.ServiceID, &RatingRequest{Rating: 5}); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Errorf("expected precondition failed, got %v", err)
	}
	if _, err := env.tracker.Rate(ctx, 9999, &RatingRequest{Rating: 5}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAddNoteConcurrentDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 100
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			note, err := env.tracker.AddNote(ctx, svc.ServiceID, &NoteRequest{Note: fmt.Sprintf("note %d", i)})
			if err != nil {
				t.Errorf("AddNote: %v", err)
				return
			}
			mu.Lock()
			ids[note.NoteID] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("expected %d distinct note ids, got %d", n, len(ids))
	}
	for id := range ids {
		if id < 5001 || id > 5000+n {
			t.Errorf("note id %d outside the sequence range", id)
		}
	}
	notes, err := env.tracker.Notes(ctx, svc.ServiceID)
	if err != nil || len(notes) != n {
		t.Errorf("expected %d stored notes, got %d (%v)", n, len(notes), err)
	}
}

func TestRescheduleClearsCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.completedService(t, 7, TransitionOptions{})

	svc, err := env.tracker.Reschedule(ctx, svc.ServiceID, &RescheduleRequest{ScheduledDate: "2024-01-05", Time: "2:00 PM"}, "tech")
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if svc.Status != models.ServiceScheduled || svc.CompletedDate != nil || svc.ActualEarnings != nil {
		t.Errorf("completion not cleared: %+v", svc)
	}
	if svc.Time != "2:00 PM" || svc.ScheduledDate.Format(models.DateLayout) != "2024-01-05" {
		t.Errorf("schedule not overwritten: %s %s", svc.ScheduledDate, svc.Time)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("paid work item projected again after reschedule: %v", upcoming)
	}

	var verr *models.ValidationError
	if _, err := env.tracker.Reschedule(ctx, svc.ServiceID, &RescheduleRequest{ScheduledDate: "soon"}, "tech"); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRecompleteAfterRescheduleKeepsLedgerConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.completedService(t, 7, TransitionOptions{})
	id := svc.ServiceID

	if _, err := env.tracker.Reschedule(ctx, id, &RescheduleRequest{ScheduledDate: "2024-01-05", Time: "2:00 PM"}, "tech"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if _, err := env.tracker.Confirm(ctx, id, TransitionOptions{}, "tech"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := env.tracker.Start(ctx, id, TransitionOptions{}, "tech"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	earnings := 400.0
	svc, err := env.tracker.Complete(ctx, id, TransitionOptions{ActualEarnings: &earnings}, "tech")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if svc.Status != models.ServiceCompleted {
		t.Fatalf("status = %s", svc.Status)
	}

	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("completed work item still projected: %v", upcoming)
	}
	payments, err := env.store.ListPayments(ctx, models.PaymentFilter{EmpID: 7})
	if err != nil || len(payments) != 1 {
		t.Fatalf("expected one payment, got %d (%v)", len(payments), err)
	}
	if payments[0].Amount != 150 {
		t.Errorf("first payment was re-priced: amount = %v", payments[0].Amount)
	}
}

func TestServiceHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	withEmail := func(date, email string) *CreateServiceRequest {
		req := serviceRequest(7, date)
		req.Customer.Email = email
		return req
	}
	complete := func(id int64) {
		t.Helper()
		for _, step := range []func(context.Context, int64, TransitionOptions, string) (*models.Service, error){
			env.tracker.Confirm, env.tracker.Start, env.tracker.Complete,
		} {
			if _, err := step(ctx, id, TransitionOptions{}, "tech"); err != nil {
				t.Fatalf("advance %d: %v", id, err)
			}
		}
	}

	var completed []int64
	for _, date := range []string{"2023-12-01", "2023-12-15", "2023-12-10"} {
		svc, err := env.tracker.Create(ctx, withEmail(date, "jane@example.com"))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		complete(svc.ServiceID)
		completed = append(completed, svc.ServiceID)
	}
	if _, err := env.tracker.Create(ctx, withEmail("2023-12-20", "jane@example.com")); err != nil {
		t.Fatalf("Create open: %v", err)
	}
	other, err := env.tracker.Create(ctx, withEmail("2023-12-05", "bob@example.com"))
	if err != nil {
		t.Fatalf("Create other: %v", err)
	}
	complete(other.ServiceID)
	current, err := env.tracker.Create(ctx, withEmail("2024-01-02", "jane@example.com"))
	if err != nil {
		t.Fatalf("Create current: %v", err)
	}

	history, err := env.tracker.History(ctx, current.ServiceID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []int64{completed[1], completed[2], completed[0]}
	if len(history) != len(want) {
		t.Fatalf("expected %d previous services, got %d", len(want), len(history))
	}
	for i, svc := range history {
		if svc.ServiceID != want[i] {
			t.Errorf("history[%d] = %d, want %d", i, svc.ServiceID, want[i])
		}
	}

	anonymous, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-03"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if history, err := env.tracker.History(ctx, anonymous.ServiceID); err != nil || len(history) != 0 {
		t.Errorf("no email: expected empty history, got %v (%v)", history, err)
	}
	if _, err := env.tracker.History(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateServiceInfo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	priority, duration, estimate := "high", 3.0, 240.0
	updated, err := env.tracker.UpdateInfo(ctx, svc.ServiceID, &UpdateInfoRequest{
		Priority: &priority, Duration: &duration, EstimatedEarnings: &estimate,
	}, "tech")
	if err != nil {
		t.Fatalf("UpdateInfo: %v", err)
	}
	if updated.Priority != "high" || updated.Duration != 3 || updated.EstimatedEarnings != 240 {
		t.Errorf("fields not updated: %+v", updated)
	}
	if updated.Status != models.ServiceScheduled {
		t.Errorf("status changed to %s", updated.Status)
	}
	upcoming, _ := env.ledger.Upcoming(ctx, 7)
	if len(upcoming) != 1 || upcoming[0].EstimatedAmount != 240 || upcoming[0].Hours != 3 {
		t.Errorf("projection not refreshed: %+v", upcoming)
	}

	bad := "urgent"
	var verr *models.ValidationError
	if _, err := env.tracker.UpdateInfo(ctx, svc.ServiceID, &UpdateInfoRequest{Priority: &bad}, "tech"); !errors.As(err, &verr) {
		t.Errorf("bad priority: expected validation error, got %v", err)
	}
	if _, err := env.tracker.UpdateInfo(ctx, svc.ServiceID, &UpdateInfoRequest{}, "tech"); !errors.As(err, &verr) {
		t.Errorf("empty update: expected validation error, got %v", err)
	}

	done := env.completedService(t, 8, TransitionOptions{})
	if _, err := env.tracker.UpdateInfo(ctx, done.ServiceID, &UpdateInfoRequest{EstimatedEarnings: &estimate}, "tech"); !errors.Is(err, models.ErrTerminalState) {
		t.Errorf("completed service: expected terminal state, got %v", err)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 8); len(upcoming) != 0 {
		t.Errorf("completed service projected again: %v", upcoming)
	}
}

func TestAddSpecialRequirements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := env.tracker.AddSpecialRequirements(ctx, svc.ServiceID, &RequirementsRequest{
		Requirements: []string{" bring ladder ", "gate code 1234"},
	}, "tech")
	if err != nil {
		t.Fatalf("AddSpecialRequirements: %v", err)
	}
	if len(updated.Requirements) != 2 || updated.Requirements[0] != "bring ladder" {
		t.Errorf("requirements = %q", updated.Requirements)
	}
	notes, _ := env.tracker.Notes(ctx, svc.ServiceID)
	if len(notes) != 1 || notes[0].Type != models.NoteFollowUp || notes[0].Note != "Special requirements: bring ladder; gate code 1234" {
		t.Errorf("unexpected notes %+v", notes)
	}

	updated, err = env.tracker.AddSpecialRequirements(ctx, svc.ServiceID, &RequirementsRequest{Requirements: []string{"pets on site"}}, "tech")
	if err != nil {
		t.Fatalf("AddSpecialRequirements: %v", err)
	}
	if len(updated.Requirements) != 1 || updated.Requirements[0] != "pets on site" {
		t.Errorf("requirements not replaced: %q", updated.Requirements)
	}

	var verr *models.ValidationError
	for _, reqs := range [][]string{nil, {"  "}} {
		if _, err := env.tracker.AddSpecialRequirements(ctx, svc.ServiceID, &RequirementsRequest{Requirements: reqs}, "tech"); !errors.As(err, &verr) {
			t.Errorf("requirements %q: expected validation error, got %v", reqs, err)
		}
	}
}

func TestScheduleViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, date := range []string{"2024-01-01", "2024-01-03", "2024-01-10"} {
		if _, err := env.tracker.Create(ctx, serviceRequest(7, date)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := env.tracker.Create(ctx, serviceRequest(8, "2024-01-01")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		view, date, status string
		want               int
	}{
		{"day", "2024-01-01", "", 1},
		{"week", "2024-01-03", "", 2},
		{"month", "2024-01-15", "", 3},
		{"all", "2024-01-15", "", 3},
		{"month", "2024-01-15", "completed", 0},
		{"month", "", "scheduled", 3},
	}
	for _, tt := range tests {
		t.Run(tt.view+"/"+tt.date+"/"+tt.status, func(t *testing.T) {
			got, err := env.tracker.Schedule(ctx, 7, tt.view, tt.date, tt.status)
			if err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			if len(got.Services) != tt.want || got.Stats["total"] != tt.want {
				t.Errorf("expected %d services, got %d (stats %v)", tt.want, len(got.Services), got.Stats)
			}
		})
	}

	today, err := env.tracker.Today(ctx, 7)
	if err != nil || len(today) != 1 {
		t.Errorf("expected 1 service today, got %d (%v)", len(today), err)
	}
	upcoming, err := env.tracker.Upcoming(ctx, 7, 0)
	if err != nil || len(upcoming) != 2 {
		t.Errorf("expected 2 services this week, got %d (%v)", len(upcoming), err)
	}

	var verr *models.ValidationError
	if _, err := env.tracker.Schedule(ctx, 7, "year", "2024-01-01", ""); !errors.As(err, &verr) {
		t.Errorf("expected validation error for unknown view, got %v", err)
	}
}

type fakeUploader struct {
	names []string
}

func (f *fakeUploader) UploadAttachment(ctx context.Context, file io.Reader, filename string) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	f.names = append(f.names, filename)
	return "https://res.cloudinary.com/demo/raw/upload/" + filename, nil
}

func TestAddAttachment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.tracker.AddAttachment(ctx, svc.ServiceID, strings.NewReader("x"), "a.jpg"); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Errorf("without uploader: expected precondition failed, got %v", err)
	}

	up := &fakeUploader{}
	env.tracker.uploader = up
	svc, err = env.tracker.AddAttachment(ctx, svc.ServiceID, strings.NewReader("jpeg bytes"), "leak.jpg")
	if err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if len(svc.Attachments) != 1 || !strings.HasSuffix(svc.Attachments[0], "leak.jpg") {
		t.Errorf("attachment not stored: %v", svc.Attachments)
	}
	notes, _ := env.tracker.Notes(ctx, svc.ServiceID)
	if len(notes) != 1 || notes[0].Type != models.NoteTechnical {
		t.Errorf("expected technical note, got %+v", notes)
	}
}
