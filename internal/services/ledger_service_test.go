package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshua-takyi/homex/internal/models"
)

func TestMaterializeConcurrentCreatesOnePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int64]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok, err := env.ledger.Materialize(ctx, svc, MaterializeInput{})
			if err != nil {
				t.Errorf("Materialize: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[p.PaymentID] = true
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 {
		t.Fatalf("expected one created payment, got created=%d ids=%v", created, ids)
	}
	payments, err := env.store.ListPayments(ctx, models.PaymentFilter{EmpID: 7})
	if err != nil || len(payments) != 1 {
		t.Fatalf("expected 1 stored payment, got %d (%v)", len(payments), err)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("projection not retired: %v", upcoming)
	}
}

func TestMaterializeRetryRetiresProjection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.completedService(t, 7, TransitionOptions{})

	// a projection left behind by a partially applied completion
	if _, err := env.store.UpsertUpcoming(ctx, &models.UpcomingPayment{
		UpcomingID: 2999, EmpID: 7, ServiceID: svc.ServiceID, EstimatedAmount: 150, Status: models.UpcomingInProgress,
	}); err != nil {
		t.Fatalf("UpsertUpcoming: %v", err)
	}

	p, created, err := env.ledger.Materialize(ctx, svc, MaterializeInput{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created || p == nil {
		t.Fatalf("expected the stored payment, got created=%v payment=%v", created, p)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("retry did not retire projection: %d upcoming remain", len(upcoming))
	}
}

func TestProjectSkipsPaidWorkItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.completedService(t, 7, TransitionOptions{})

	u, err := env.ledger.Project(ctx, svc)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if u != nil {
		t.Errorf("paid work item projected: %+v", u)
	}
	if upcoming, _ := env.ledger.Upcoming(ctx, 7); len(upcoming) != 0 {
		t.Errorf("expected no projections, got %v", upcoming)
	}
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-02"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := env.ledger.CreatePayment(ctx, &CreatePaymentRequest{ServiceID: open.ServiceID}); !errors.Is(err, models.ErrPreconditionFailed) {
		t.Errorf("open service: expected precondition failed, got %v", err)
	}
	if _, _, err := env.ledger.CreatePayment(ctx, &CreatePaymentRequest{ServiceID: 9999}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown service: expected not found, got %v", err)
	}

	done := env.completedService(t, 7, TransitionOptions{})
	first, err := env.store.GetPaymentByService(ctx, done.ServiceID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	again, created, err := env.ledger.CreatePayment(ctx, &CreatePaymentRequest{ServiceID: done.ServiceID})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if created || again.PaymentID != first.PaymentID {
		t.Errorf("expected the existing payment %d, got %d (created=%v)", first.PaymentID, again.PaymentID, created)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.completedService(t, 7, TransitionOptions{})
	p, err := env.store.GetPaymentByService(ctx, svc.ServiceID)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}

	var verr *models.ValidationError
	if _, err := env.ledger.UpdateStatus(ctx, p.PaymentID, "refunded"); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.ledger.UpdateStatus(ctx, 42, models.PaymentPending); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	updated, err := env.ledger.UpdateStatus(ctx, p.PaymentID, models.PaymentCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != models.PaymentCancelled {
		t.Errorf("status not updated: %s", updated.Status)
	}
	stats, _ := env.ledger.TechnicianStats(ctx, 7)
	if stats.Statistics.TotalEarnings != 0 {
		t.Errorf("cancelled payment still counted: %+v", stats)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.completedService(t, 7, TransitionOptions{})
	earnings := 250.0
	second := env.completedService(t, 7, TransitionOptions{ActualEarnings: &earnings, PaymentMethod: models.PaymentMethodCreditCard})
	if _, err := env.tracker.Create(ctx, serviceRequest(7, "2024-01-05")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p, _ := env.store.GetPaymentByService(ctx, second.ServiceID)
	if _, err := env.ledger.UpdateStatus(ctx, p.PaymentID, models.PaymentPending); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	d, err := env.ledger.Dashboard(ctx, 7)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	want := DashboardStats{
		TotalEarnings:   150,
		PendingAmount:   250,
		TotalCommission: 30,
		AverageEarning:  150,
		CompletedCount:  1,
		PendingCount:    1,
		TotalServices:   2,
	}
	if d.Stats != want {
		t.Errorf("expected %+v, got %+v", want, d.Stats)
	}
	if len(d.Payments) != 2 || len(d.UpcomingPayments) != 1 {
		t.Errorf("expected 2 payments and 1 upcoming, got %d and %d", len(d.Payments), len(d.UpcomingPayments))
	}
	if d.PaymentMethods[models.PaymentMethodCash] != 1 || d.PaymentMethods[models.PaymentMethodCreditCard] != 0 {
		t.Errorf("unexpected method distribution %v", d.PaymentMethods)
	}
}

func TestFilterAndTimeSeries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.completedService(t, 7, TransitionOptions{})
	env.completedService(t, 7, TransitionOptions{})

	old := &models.Payment{
		PaymentID: 900, EmpID: 7, ServiceID: 1, Amount: 99, Status: models.PaymentCompleted,
		Date: testNow.AddDate(0, -3, 0),
	}
	if _, _, err := env.store.InsertPayment(ctx, old); err != nil {
		t.Fatalf("InsertPayment: %v", err)
	}

	month, err := env.ledger.Filter(ctx, 7, "month", "all")
	if err != nil || len(month) != 2 {
		t.Fatalf("expected 2 payments this month, got %d (%v)", len(month), err)
	}
	all, err := env.ledger.Filter(ctx, 7, "all", "completed")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 completed payments, got %d (%v)", len(all), err)
	}
	var verr *models.ValidationError
	if _, err := env.ledger.Filter(ctx, 7, "all", "paid"); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}

	series, err := env.ledger.EarningsTimeSeries(ctx, 7, "week")
	if err != nil {
		t.Fatalf("EarningsTimeSeries: %v", err)
	}
	if len(series) != 1 || series[0].Date != "2024-01-01" || series[0].Count != 2 || series[0].TotalEarnings != 300 {
		t.Errorf("unexpected series %+v", series)
	}
}

func TestExportRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.completedService(t, 7, TransitionOptions{})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	got, err := env.ledger.Export(ctx, 7, &start, &end)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 payment in range, got %d (%v)", len(got), err)
	}

	later := start.AddDate(0, 0, 5)
	got, err = env.ledger.Export(ctx, 7, &later, nil)
	if err != nil || len(got) != 1 {
		t.Errorf("a single bound must not filter, got %d (%v)", len(got), err)
	}

	var verr *models.ValidationError
	if _, err := env.ledger.Export(ctx, 7, &end, &start); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	payments := []*models.Payment{{
		PaymentID:   1001,
		ServiceType: "Plumbing",
		Customer:    models.PaymentCustomer{Name: "Jane Doe"},
		Amount:      150,
		Commission:  30,
		Status:      models.PaymentCompleted,
		Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, {
		PaymentID:   1002,
		ServiceType: "AC Repair",
		Customer:    models.PaymentCustomer{Name: "Doe, John"},
		Amount:      99.5,
		Commission:  19.9,
		Status:      models.PaymentPending,
		Date:        time.Date(2024, 2, 3, 4, 5, 6, 7e6, time.UTC),
	}}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, payments); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"PaymentID,ServiceType,Customer,Amount,Commission,Status,Date",
		"1001,Plumbing,Jane Doe,150,30,completed,2024-01-01T00:00:00.000Z",
		`1002,AC Repair,"Doe, John",99.5,19.9,pending,2024-02-03T04:05:06.007Z`,
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-01-02", "2024-01-02T00:00:00Z", false},
		{" 2024-01-02 ", "2024-01-02T00:00:00Z", false},
		{"2024-01-02T10:30:00+05:30", "2024-01-02T05:00:00Z", false},
		{"01/02/2024", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got.Format(time.RFC3339) != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format(time.RFC3339), tt.want)
		}
	}
}
