package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// CSVDateLayout renders payment dates in export files.
const CSVDateLayout = "2006-01-02T15:04:05.000Z"

var CSVHeader = []string{"PaymentID", "ServiceType", "Customer", "Amount", "Commission", "Status", "Date"}

type LedgerService struct {
	store          models.Store
	commissionRate float64
	publisher      events.Publisher
	logger         *slog.Logger
	now            func() time.Time
}

func NewLedgerService(store models.Store, commissionRate float64, publisher events.Publisher, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:          store,
		commissionRate: commissionRate,
		publisher:      publisher,
		logger:         orDefault(logger),
		now:            time.Now,
	}
}

// MaterializeInput carries the figures of the completing transition. Zero
// values fall back to the work item's own figures.
type MaterializeInput struct {
	Amount        float64  `json:"amount" validate:"gte=0"`
	Commission    *float64 `json:"commission,omitempty" validate:"omitempty,gte=0"`
	BaseRate      *float64 `json:"baseRate,omitempty" validate:"omitempty,gte=0"`
	Bonus         float64  `json:"bonus" validate:"gte=0"`
	Hours         float64  `json:"hours" validate:"gte=0"`
	PaymentMethod string   `json:"paymentMethod,omitempty" validate:"omitempty,oneof=credit_card cash bank_transfer"`
	TransactionID string   `json:"transactionId,omitempty"`
	Notes         string   `json:"notes,omitempty" validate:"max=500"`
}

type CreatePaymentRequest struct {
	ServiceID int64 `json:"serviceId" validate:"required"`
	MaterializeInput
}

// Project creates or refreshes the upcoming payment of an open work item. A
// work item that was already paid gets no projection and Project returns nil.
func (ls *LedgerService) Project(ctx context.Context, svc *models.Service) (*models.UpcomingPayment, error) {
	if _, err := ls.store.GetPaymentByService(ctx, svc.ServiceID); err == nil {
		return nil, ls.store.DeleteUpcomingByService(ctx, svc.ServiceID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	id, err := ls.store.NextID(ctx, models.SeqUpcomingPayment)
	if err != nil {
		return nil, err
	}
	now := ls.now().UTC()
	return ls.store.UpsertUpcoming(ctx, &models.UpcomingPayment{
		UpcomingID:      id,
		EmpID:           svc.EmpID,
		ServiceID:       svc.ServiceID,
		Customer:        paymentCustomer(svc.Customer),
		ServiceType:     svc.ServiceType,
		EstimatedAmount: svc.EstimatedEarnings,
		ScheduledDate:   svc.ScheduledDate,
		Status:          models.UpcomingStatusFor(svc.Status),
		Hours:           svc.Duration,
		Address:         svc.Customer.Address,
		Notes:           svc.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// Retire drops the projection of a work item that will not be paid.
func (ls *LedgerService) Retire(ctx context.Context, serviceID int64) error {
	return ls.store.DeleteUpcomingByService(ctx, serviceID)
}

// Materialize records the payment of a completed work item and retires its
// projection. Calling it again for the same service returns the stored payment
// with created=false and still retires the projection, so a retry after a
// partial failure converges. A stored payment is never re-priced; a work item
// completed again after a reschedule keeps its first payment. Callers wanting
// both writes atomic wrap it in a transaction; the projection delete runs last
// and is idempotent.
func (ls *LedgerService) Materialize(ctx context.Context, svc *models.Service, in MaterializeInput) (_ *models.Payment, created bool, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Materialize")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("service.id", svc.ServiceID))

	if existing, err := ls.store.GetPaymentByService(ctx, svc.ServiceID); err == nil {
		if err := ls.store.DeleteUpcomingByService(ctx, svc.ServiceID); err != nil {
			return nil, false, err
		}
		if svc.ActualEarnings != nil && *svc.ActualEarnings != existing.Amount {
			ls.logger.WarnContext(ctx, "work item earnings differ from its recorded payment",
				"service_id", svc.ServiceID, "payment_id", existing.PaymentID,
				"actual_earnings", *svc.ActualEarnings, "payment_amount", existing.Amount)
		}
		return existing, false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	id, err := ls.store.NextID(ctx, models.SeqPayment)
	if err != nil {
		return nil, false, err
	}
	payment := ls.buildPayment(id, svc, in)

	stored, created, err := ls.store.InsertPayment(ctx, payment)
	if err != nil {
		return nil, false, err
	}
	if err := ls.store.DeleteUpcomingByService(ctx, svc.ServiceID); err != nil {
		return nil, false, err
	}

	if created {
		ls.logger.InfoContext(ctx, "payment materialized", "payment_id", stored.PaymentID, "service_id", svc.ServiceID, "amount", stored.Amount)
		publish(ctx, ls.publisher, ls.logger, events.PaymentMaterialized, strconv.FormatInt(stored.PaymentID, 10), "system", stored)
	}
	return stored, created, nil
}

func (ls *LedgerService) buildPayment(id int64, svc *models.Service, in MaterializeInput) *models.Payment {
	amount := in.Amount
	if amount == 0 && svc.ActualEarnings != nil {
		amount = *svc.ActualEarnings
	}
	if amount == 0 {
		amount = svc.EstimatedEarnings
	}
	hours := in.Hours
	if hours == 0 {
		hours = svc.Duration
	}
	if hours <= 0 {
		hours = 1
	}

	commission := roundTo(amount*ls.commissionRate, 2)
	if in.Commission != nil {
		commission = *in.Commission
	}
	baseRate := roundTo(amount/hours, 2)
	if in.BaseRate != nil {
		baseRate = *in.BaseRate
	}
	method := in.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}

	now := ls.now().UTC()
	date := now
	if svc.CompletedDate != nil {
		date = svc.CompletedDate.UTC()
	}
	return &models.Payment{
		PaymentID:     id,
		EmpID:         svc.EmpID,
		ServiceID:     svc.ServiceID,
		Customer:      paymentCustomer(svc.Customer),
		ServiceType:   svc.ServiceType,
		Amount:        amount,
		Commission:    commission,
		BaseRate:      baseRate,
		Bonus:         in.Bonus,
		Hours:         hours,
		Date:          date,
		Status:        models.PaymentCompleted,
		PaymentMethod: method,
		TransactionID: in.TransactionID,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func paymentCustomer(c models.Customer) models.PaymentCustomer {
	return models.PaymentCustomer{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

// CreatePayment materializes the payment of an already completed work item.
// It is the manual retry path and shares Materialize's idempotence.
func (ls *LedgerService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*models.Payment, bool, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, false, err
	}
	svc, err := ls.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, false, err
	}
	if svc.Status != models.ServiceCompleted {
		return nil, false, fmt.Errorf("%w: service %d is %s, payments need a completed service", models.ErrPreconditionFailed, svc.ServiceID, svc.Status)
	}

	var (
		payment *models.Payment
		created bool
	)
	err = ls.store.WithTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		payment, created, txErr = ls.Materialize(ctx, svc, req.MaterializeInput)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	if _, err := ls.RefreshTechnicianStats(ctx, svc.EmpID); err != nil {
		ls.logger.WarnContext(ctx, "failed to refresh technician stats", "emp_id", svc.EmpID, "error", err)
	}
	return payment, created, nil
}

func (ls *LedgerService) Get(ctx context.Context, id int64) (*models.Payment, error) {
	return ls.store.GetPayment(ctx, id)
}

func (ls *LedgerService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Payment, error) {
	if !isPaymentStatus(status) {
		return nil, models.NewValidationError("status", "must be one of: completed pending cancelled")
	}
	payment, err := ls.store.UpdatePaymentStatus(ctx, id, status, ls.now().UTC())
	if err != nil {
		return nil, err
	}
	if _, err := ls.RefreshTechnicianStats(ctx, payment.EmpID); err != nil {
		ls.logger.WarnContext(ctx, "failed to refresh technician stats", "emp_id", payment.EmpID, "error", err)
	}
	return payment, nil
}

func isPaymentStatus(s string) bool {
	for _, v := range models.PaymentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (ls *LedgerService) Upcoming(ctx context.Context, empID int64) ([]*models.UpcomingPayment, error) {
	return ls.store.ListUpcoming(ctx, empID)
}

type DashboardStats struct {
	TotalEarnings   float64 `json:"totalEarnings"`
	PendingAmount   float64 `json:"pendingAmount"`
	TotalCommission float64 `json:"totalCommission"`
	AverageEarning  float64 `json:"averageEarning"`
	CompletedCount  int     `json:"completedCount"`
	PendingCount    int     `json:"pendingCount"`
	TotalServices   int     `json:"totalServices"`
}

type Dashboard struct {
	Payments         []*models.Payment         `json:"payments"`
	UpcomingPayments []*models.UpcomingPayment `json:"upcomingPayments"`
	Stats            DashboardStats            `json:"stats"`
	PaymentMethods   map[string]int            `json:"paymentMethods"`
}

const dashboardPaymentLimit = 50

// Dashboard derives every figure from the current payment set.
func (ls *LedgerService) Dashboard(ctx context.Context, empID int64) (_ *Dashboard, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Dashboard")
	defer func() { endSpan(span, err) }()

	payments, err := ls.store.ListPayments(ctx, models.PaymentFilter{EmpID: empID, Limit: dashboardPaymentLimit})
	if err != nil {
		return nil, err
	}
	upcoming, err := ls.store.ListUpcoming(ctx, empID)
	if err != nil {
		return nil, err
	}
	completed, err := ls.store.ListServices(ctx, models.ServiceFilter{EmpID: empID, Statuses: []models.ServiceStatus{models.ServiceCompleted}})
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Payments:         payments,
		UpcomingPayments: upcoming,
		Stats:            paymentStats(payments, len(completed)),
		PaymentMethods:   methodDistribution(payments),
	}, nil
}

func paymentStats(payments []*models.Payment, totalServices int) DashboardStats {
	stats := DashboardStats{TotalServices: totalServices}
	for _, p := range payments {
		switch p.Status {
		case models.PaymentCompleted:
			stats.TotalEarnings += p.Amount
			stats.TotalCommission += p.Commission
			stats.CompletedCount++
		case models.PaymentPending:
			stats.PendingAmount += p.Amount
			stats.PendingCount++
		}
	}
	if stats.CompletedCount > 0 {
		stats.AverageEarning = roundTo(stats.TotalEarnings/float64(stats.CompletedCount), 2)
	}
	return stats
}

func methodDistribution(payments []*models.Payment) map[string]int {
	dist := make(map[string]int, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		dist[m] = 0
	}
	for _, p := range payments {
		if p.Status == models.PaymentCompleted {
			dist[p.PaymentMethod]++
		}
	}
	return dist
}

// periodStart maps week|month|year onto the earliest included instant; all
// and unknown values return nil.
func periodStart(now time.Time, period string) *time.Time {
	var t time.Time
	switch period {
	case "week":
		t = now.AddDate(0, 0, -7)
	case "month":
		t = now.AddDate(0, -1, 0)
	case "year":
		t = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &t
}

func (ls *LedgerService) Filter(ctx context.Context, empID int64, timeFilter, statusFilter string) ([]*models.Payment, error) {
	f := models.PaymentFilter{EmpID: empID, From: periodStart(ls.now().UTC(), timeFilter)}
	if statusFilter != "" && statusFilter != "all" {
		if !isPaymentStatus(statusFilter) {
			return nil, models.NewValidationError("statusFilter", "must be one of: all completed pending cancelled")
		}
		f.Status = statusFilter
	}
	return ls.store.ListPayments(ctx, f)
}

type DailyEarnings struct {
	Date            string  `json:"date"`
	TotalEarnings   float64 `json:"totalEarnings"`
	TotalCommission float64 `json:"totalCommission"`
	Count           int     `json:"count"`
}

// EarningsTimeSeries buckets completed payments of the period by UTC day,
// oldest first. Unknown periods fall back to a month.
func (ls *LedgerService) EarningsTimeSeries(ctx context.Context, empID int64, period string) ([]DailyEarnings, error) {
	from := periodStart(ls.now().UTC(), period)
	if from == nil {
		from = periodStart(ls.now().UTC(), "month")
	}
	payments, err := ls.store.ListPayments(ctx, models.PaymentFilter{EmpID: empID, Status: models.PaymentCompleted, From: from})
	if err != nil {
		return nil, err
	}
	return bucketByDay(payments), nil
}

func bucketByDay(payments []*models.Payment) []DailyEarnings {
	buckets := map[string]*DailyEarnings{}
	for _, p := range payments {
		day := p.Date.UTC().Format(models.DateLayout)
		b, ok := buckets[day]
		if !ok {
			b = &DailyEarnings{Date: day}
			buckets[day] = b
		}
		b.TotalEarnings += p.Amount
		b.TotalCommission += p.Commission
		b.Count++
	}

	out := make([]DailyEarnings, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Export lists payments newest first. The range applies only when both ends
// are given.
func (ls *LedgerService) Export(ctx context.Context, empID int64, start, end *time.Time) ([]*models.Payment, error) {
	f := models.PaymentFilter{EmpID: empID}
	if start != nil && end != nil {
		if end.Before(*start) {
			return nil, models.NewValidationError("endDate", "must not be before startDate")
		}
		f.From, f.To = start, end
	}
	return ls.store.ListPayments(ctx, f)
}

func WriteCSV(w io.Writer, payments []*models.Payment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range payments {
		record := []string{
			strconv.FormatInt(p.PaymentID, 10),
			p.ServiceType,
			p.Customer.Name,
			strconv.FormatFloat(p.Amount, 'f', -1, 64),
			strconv.FormatFloat(p.Commission, 'f', -1, 64),
			p.Status,
			p.Date.UTC().Format(CSVDateLayout),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RefreshTechnicianStats rebuilds the cached figures from work items and
// payments.
func (ls *LedgerService) RefreshTechnicianStats(ctx context.Context, empID int64) (*models.TechnicianStats, error) {
	completed, err := ls.store.ListServices(ctx, models.ServiceFilter{EmpID: empID, Statuses: []models.ServiceStatus{models.ServiceCompleted}})
	if err != nil {
		return nil, err
	}
	rated, err := ls.store.ListServices(ctx, models.ServiceFilter{EmpID: empID, Rated: true})
	if err != nil {
		return nil, err
	}
	payments, err := ls.store.ListPayments(ctx, models.PaymentFilter{EmpID: empID, Status: models.PaymentCompleted})
	if err != nil {
		return nil, err
	}

	stats := &models.TechnicianStats{
		EmpID:         empID,
		CompletedJobs: len(completed),
		RatedServices: len(rated),
		UpdatedAt:     ls.now().UTC(),
	}
	ratings := make([]int, 0, len(rated))
	for _, s := range rated {
		ratings = append(ratings, *s.Rating)
	}
	stats.Rating = AverageRating(ratings)
	for _, s := range completed {
		stats.Statistics.HoursWorked += s.Duration
	}
	for _, p := range payments {
		stats.Statistics.TotalEarnings += p.Amount
	}

	if err := ls.store.SaveEmployeeStats(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// TechnicianStats returns the cached figures, rebuilding them on a miss.
func (ls *LedgerService) TechnicianStats(ctx context.Context, empID int64) (*models.TechnicianStats, error) {
	stats, err := ls.store.GetEmployeeStats(ctx, empID)
	if errors.Is(err, models.ErrNotFound) {
		return ls.RefreshTechnicianStats(ctx, empID)
	}
	return stats, err
}
