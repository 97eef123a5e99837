package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// AttachmentUploader stores a file and returns its public URL.
type AttachmentUploader interface {
	UploadAttachment(ctx context.Context, file io.Reader, filename string) (string, error)
}

type TrackerService struct {
	store     models.Store
	ledger    *LedgerService
	uploader  AttachmentUploader
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewTrackerService(store models.Store, ledger *LedgerService, uploader AttachmentUploader, publisher events.Publisher, logger *slog.Logger) *TrackerService {
	return &TrackerService{
		store:     store,
		ledger:    ledger,
		uploader:  uploader,
		publisher: publisher,
		logger:    orDefault(logger),
		now:       time.Now,
	}
}

type CreateServiceRequest struct {
	EmpID             int64           `json:"empId" validate:"required,gt=0"`
	Title             string          `json:"title" validate:"required,max=200"`
	Description       string          `json:"description,omitempty" validate:"max=1000"`
	ServiceType       string          `json:"serviceType" validate:"required"`
	Customer          models.Customer `json:"customer"`
	ScheduledDate     string          `json:"scheduledDate" validate:"required"`
	Time              string          `json:"time" validate:"required"`
	Duration          float64         `json:"duration,omitempty" validate:"gte=0"`
	EstimatedEarnings float64         `json:"estimatedEarnings" validate:"gte=0"`
	Priority          string          `json:"priority,omitempty" validate:"omitempty,oneof=low medium high emergency"`
	Notes             string          `json:"notes,omitempty" validate:"max=1000"`
}

// TransitionOptions carries the optional inputs of a work item transition.
type TransitionOptions struct {
	Notes          string     `json:"notes,omitempty" validate:"max=1000"`
	ActualEarnings *float64   `json:"actualEarnings,omitempty" validate:"omitempty,gte=0"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
	Hours          float64    `json:"hours,omitempty" validate:"gte=0"`
	Bonus          float64    `json:"bonus,omitempty" validate:"gte=0"`
	PaymentMethod  string     `json:"paymentMethod,omitempty" validate:"omitempty,oneof=credit_card cash bank_transfer"`
}

type NoteRequest struct {
	Note      string          `json:"note" validate:"required,max=2000"`
	Type      models.NoteType `json:"type,omitempty" validate:"omitempty,oneof=general customer_communication technical follow_up"`
	Priority  string          `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	CreatedBy string          `json:"createdBy,omitempty" validate:"omitempty,oneof=technician customer system"`
}

func isServiceType(s string) bool {
	for _, t := range models.ServiceTypes {
		if t == s {
			return true
		}
	}
	return false
}

func (ts *TrackerService) Create(ctx context.Context, req *CreateServiceRequest) (*models.Service, error) {
	id, err := ts.store.NextID(ctx, models.SeqService)
	if err != nil {
		return nil, err
	}
	return ts.create(ctx, id, req, "")
}

// create validates req and stores the work item under id, projecting its
// upcoming payment.
func (ts *TrackerService) create(ctx context.Context, id int64, req *CreateServiceRequest, bookingID string) (*models.Service, error) {
	verr := &models.ValidationError{}
	if err := validationFrom(verr, models.ValidateStruct(req)); err != nil {
		return nil, err
	}
	if req.ServiceType != "" && !isServiceType(req.ServiceType) {
		verr.Add("serviceType", "must be one of: "+strings.Join(models.ServiceTypes, ", "))
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		verr.Add("customer.name", "is required")
	}
	var scheduled time.Time
	if req.ScheduledDate != "" {
		d, err := ParseDate(req.ScheduledDate)
		if err != nil {
			verr.Add("scheduledDate", "must be a valid date (YYYY-MM-DD)")
		}
		scheduled = d
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration == 0 {
		duration = 1
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	now := ts.now().UTC()
	svc := &models.Service{
		ServiceID:         id,
		EmpID:             req.EmpID,
		BookingID:         bookingID,
		Title:             req.Title,
		Description:       req.Description,
		ServiceType:       req.ServiceType,
		Customer:          req.Customer,
		ScheduledDate:     scheduled,
		Time:              req.Time,
		Duration:          duration,
		Status:            models.ServiceScheduled,
		EstimatedEarnings: req.EstimatedEarnings,
		PaymentStatus:     models.PaymentStatusPending,
		Priority:          priority,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := ts.store.InsertService(ctx, svc); err != nil {
		return nil, err
	}
	if _, err := ts.ledger.Project(ctx, svc); err != nil {
		return nil, err
	}

	ts.logActivity(ctx, svc, models.ActivityServiceScheduled, "Scheduled", nil)
	ts.logger.InfoContext(ctx, "service created", "service_id", svc.ServiceID, "emp_id", svc.EmpID, "booking_id", bookingID)
	return svc, nil
}

func (ts *TrackerService) Get(ctx context.Context, id int64) (*models.Service, error) {
	return ts.store.GetService(ctx, id)
}

func (ts *TrackerService) Confirm(ctx context.Context, id int64, opts TransitionOptions, actor string) (*models.Service, error) {
	return ts.Transition(ctx, id, models.ServiceConfirmed, opts, actor)
}

func (ts *TrackerService) Start(ctx context.Context, id int64, opts TransitionOptions, actor string) (*models.Service, error) {
	return ts.Transition(ctx, id, models.ServiceInProgress, opts, actor)
}

func (ts *TrackerService) Complete(ctx context.Context, id int64, opts TransitionOptions, actor string) (*models.Service, error) {
	return ts.Transition(ctx, id, models.ServiceCompleted, opts, actor)
}

func (ts *TrackerService) Cancel(ctx context.Context, id int64, opts TransitionOptions, actor string) (*models.Service, error) {
	return ts.Transition(ctx, id, models.ServiceCancelled, opts, actor)
}

var transitionVerbs = map[models.ServiceStatus]string{
	models.ServiceScheduled:  "Rescheduled",
	models.ServiceConfirmed:  "Confirmed",
	models.ServiceInProgress: "Started",
	models.ServiceCompleted:  "Completed",
	models.ServiceCancelled:  "Cancelled",
}

// Transition moves a work item along its lifecycle. The status write is a
// compare-and-set on the status read here, so two racing transitions cannot
// both apply.
func (ts *TrackerService) Transition(ctx context.Context, id int64, to models.ServiceStatus, opts TransitionOptions, actor string) (_ *models.Service, err error) {
	ctx, span := tracer.Start(ctx, "TrackerService.Transition")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("service.id", id), attribute.String("service.to", string(to)))

	if !to.Valid() || to == models.ServiceScheduled {
		return nil, models.NewValidationError("status", "must be one of: confirmed in_progress completed cancelled")
	}
	if err := models.ValidateStruct(opts); err != nil {
		return nil, err
	}

	current, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: service %d is %s", models.ErrTerminalState, id, current.Status)
	}
	if !current.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: service %d cannot go from %s to %s", models.ErrInvalidTransition, id, current.Status, to)
	}

	now := ts.now().UTC()
	patch := models.ServicePatch{From: []models.ServiceStatus{current.Status}, Status: &to, At: now}
	if opts.Notes != "" {
		patch.Notes = &opts.Notes
	}

	var svc *models.Service
	switch to {
	case models.ServiceInProgress:
		started := now
		if opts.StartTime != nil {
			started = opts.StartTime.UTC()
		}
		patch.StartedAt = &started
		svc, err = ts.store.UpdateService(ctx, id, patch)
		if err == nil {
			_, err = ts.ledger.Project(ctx, svc)
		}

	case models.ServiceCompleted:
		completed := now
		if opts.CompletionTime != nil {
			completed = opts.CompletionTime.UTC()
		}
		earnings := current.EstimatedEarnings
		if opts.ActualEarnings != nil {
			earnings = *opts.ActualEarnings
		}
		paid := models.PaymentStatusPaid
		patch.CompletedDate = &completed
		patch.ActualEarnings = &earnings
		patch.PaymentStatus = &paid
		err = ts.store.WithTransaction(ctx, func(ctx context.Context) error {
			updated, txErr := ts.store.UpdateService(ctx, id, patch)
			if txErr != nil {
				return txErr
			}
			svc = updated
			_, _, txErr = ts.ledger.Materialize(ctx, updated, MaterializeInput{
				Amount:        earnings,
				Hours:         opts.Hours,
				Bonus:         opts.Bonus,
				PaymentMethod: opts.PaymentMethod,
			})
			return txErr
		})

	case models.ServiceCancelled:
		cancelled := models.PaymentStatusCancelled
		patch.PaymentStatus = &cancelled
		svc, err = ts.store.UpdateService(ctx, id, patch)
		if err == nil {
			err = ts.ledger.Retire(ctx, id)
		}

	default:
		svc, err = ts.store.UpdateService(ctx, id, patch)
		if err == nil {
			_, err = ts.ledger.Project(ctx, svc)
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.Notes != "" {
		prefix := fmt.Sprintf("Status changed to %s: ", to)
		noteType := models.NoteGeneral
		switch to {
		case models.ServiceConfirmed:
			prefix = "Service confirmed: "
		case models.ServiceInProgress:
			prefix, noteType = "Service started: ", models.NoteTechnical
		case models.ServiceCompleted:
			prefix = "Service completed: "
		case models.ServiceCancelled:
			prefix = "Service cancelled: "
		}
		if _, err := ts.appendNote(ctx, svc, prefix+opts.Notes, noteType, "medium", "technician"); err != nil {
			return nil, err
		}
	}

	activity := models.ActivityServiceScheduled
	var metadata map[string]any
	if to == models.ServiceCompleted {
		activity = models.ActivityServiceCompleted
		metadata = map[string]any{"earnings": *svc.ActualEarnings}
	}
	ts.logActivity(ctx, svc, activity, transitionVerbs[to], metadata)

	if to == models.ServiceCompleted {
		if _, err := ts.ledger.RefreshTechnicianStats(ctx, svc.EmpID); err != nil {
			ts.logger.WarnContext(ctx, "failed to refresh technician stats", "emp_id", svc.EmpID, "error", err)
		}
	}

	ts.logger.InfoContext(ctx, "service status changed", "service_id", id, "from", current.Status, "to", to, "actor", actor)
	publish(ctx, ts.publisher, ts.logger, events.ServiceStatusChanged, strconv.FormatInt(id, 10), actor, map[string]any{
		"serviceId": id, "from": current.Status, "to": to,
	})
	return svc, nil
}

// advanceTo walks a linked work item forward through every intermediate state
// up to target. Items already at or past target are left alone.
func (ts *TrackerService) advanceTo(ctx context.Context, id int64, target models.ServiceStatus, opts TransitionOptions, actor string) (*models.Service, error) {
	order := []models.ServiceStatus{models.ServiceScheduled, models.ServiceConfirmed, models.ServiceInProgress, models.ServiceCompleted}
	rank := func(s models.ServiceStatus) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		return len(order)
	}

	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if svc.Status == models.ServiceCancelled {
		return nil, fmt.Errorf("%w: work item %d is cancelled", models.ErrPreconditionFailed, id)
	}
	for rank(svc.Status) < rank(target) {
		next := order[rank(svc.Status)+1]
		stepOpts := TransitionOptions{}
		if next == target {
			stepOpts = opts
		}
		svc, err = ts.Transition(ctx, id, next, stepOpts, actor)
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

type RescheduleRequest struct {
	ScheduledDate string `json:"scheduledDate" validate:"required"`
	Time          string `json:"time" validate:"required"`
	Notes         string `json:"notes,omitempty" validate:"max=1000"`
}

// Reschedule returns a work item to scheduled from any state, overwriting its
// date and time and clearing completion fields.
func (ts *TrackerService) Reschedule(ctx context.Context, id int64, req *RescheduleRequest, actor string) (_ *models.Service, err error) {
	ctx, span := tracer.Start(ctx, "TrackerService.Reschedule")
	defer func() { endSpan(span, err) }()

	verr := &models.ValidationError{}
	if err := validationFrom(verr, models.ValidateStruct(req)); err != nil {
		return nil, err
	}
	var date time.Time
	if req.ScheduledDate != "" {
		d, perr := ParseDate(req.ScheduledDate)
		if perr != nil {
			verr.Add("scheduledDate", "must be a valid date (YYYY-MM-DD)")
		}
		date = d
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	scheduled := models.ServiceScheduled
	pending := models.PaymentStatusPending
	patch := models.ServicePatch{
		Status:          &scheduled,
		ScheduledDate:   &date,
		Time:            &req.Time,
		PaymentStatus:   &pending,
		ClearCompletion: true,
		At:              ts.now().UTC(),
	}
	if req.Notes != "" {
		patch.Notes = &req.Notes
	}
	svc, err := ts.store.UpdateService(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if _, err := ts.ledger.Project(ctx, svc); err != nil {
		return nil, err
	}

	if req.Notes != "" {
		text := fmt.Sprintf("Service rescheduled to %s at %s: %s", date.Format(models.DateLayout), req.Time, req.Notes)
		if _, err := ts.appendNote(ctx, svc, text, models.NoteGeneral, "medium", "technician"); err != nil {
			return nil, err
		}
	}
	ts.logActivity(ctx, svc, models.ActivityServiceScheduled, transitionVerbs[models.ServiceScheduled], nil)
	publish(ctx, ts.publisher, ts.logger, events.ServiceStatusChanged, strconv.FormatInt(id, 10), actor, map[string]any{
		"serviceId": id, "to": models.ServiceScheduled, "scheduledDate": date, "time": req.Time,
	})
	return svc, nil
}

// AddNote appends an immutable note and mirrors it into the work item's
// notes summary.
func (ts *TrackerService) AddNote(ctx context.Context, id int64, req *NoteRequest) (*models.ServiceNote, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	noteType := req.Type
	if noteType == "" {
		noteType = models.NoteGeneral
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "technician"
	}
	return ts.appendNote(ctx, svc, req.Note, noteType, priority, createdBy)
}

func (ts *TrackerService) appendNote(ctx context.Context, svc *models.Service, text string, noteType models.NoteType, priority, createdBy string) (*models.ServiceNote, error) {
	id, err := ts.store.NextID(ctx, models.SeqServiceNote)
	if err != nil {
		return nil, err
	}
	note := &models.ServiceNote{
		NoteID:    id,
		ServiceID: svc.ServiceID,
		EmpID:     svc.EmpID,
		Note:      text,
		Type:      noteType,
		Priority:  priority,
		CreatedBy: createdBy,
		CreatedAt: ts.now().UTC(),
	}
	if err := ts.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	if _, err := ts.store.UpdateService(ctx, svc.ServiceID, models.ServicePatch{Notes: &text, At: note.CreatedAt}); err != nil {
		return nil, err
	}
	return note, nil
}

func (ts *TrackerService) Notes(ctx context.Context, id int64) ([]*models.ServiceNote, error) {
	if _, err := ts.store.GetService(ctx, id); err != nil {
		return nil, err
	}
	return ts.store.ListNotes(ctx, id)
}

type ServiceDetails struct {
	Service *models.Service       `json:"service"`
	Notes   []*models.ServiceNote `json:"notes"`
}

func (ts *TrackerService) Details(ctx context.Context, id int64) (*ServiceDetails, error) {
	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	notes, err := ts.store.ListNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ServiceDetails{Service: svc, Notes: notes}, nil
}

// historyLimit caps the previous services returned for a customer.
const historyLimit = 10

// History lists the customer's other completed work items, newest first. A
// work item without a customer email has no history.
func (ts *TrackerService) History(ctx context.Context, id int64) ([]*models.Service, error) {
	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(svc.Customer.Email)
	if email == "" {
		return []*models.Service{}, nil
	}
	return ts.store.ListServices(ctx, models.ServiceFilter{
		CustomerEmail: email,
		ExcludeID:     id,
		Statuses:      []models.ServiceStatus{models.ServiceCompleted},
		NewestFirst:   true,
		Limit:         historyLimit,
	})
}

// UpdateInfoRequest lists the work item fields editable outside a status
// transition. Status and earnings move only through Transition.
type UpdateInfoRequest struct {
	Priority          *string  `json:"priority,omitempty" validate:"omitempty,oneof=low medium high emergency"`
	Duration          *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	EstimatedEarnings *float64 `json:"estimatedEarnings,omitempty" validate:"omitempty,gte=0"`
	Notes             *string  `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (r *UpdateInfoRequest) empty() bool {
	return r.Priority == nil && r.Duration == nil && r.EstimatedEarnings == nil && r.Notes == nil
}

var openServiceStatuses = []models.ServiceStatus{models.ServiceScheduled, models.ServiceConfirmed, models.ServiceInProgress}

// UpdateInfo edits an open work item and refreshes its projection.
func (ts *TrackerService) UpdateInfo(ctx context.Context, id int64, req *UpdateInfoRequest, actor string) (_ *models.Service, err error) {
	ctx, span := tracer.Start(ctx, "TrackerService.UpdateInfo")
	defer func() { endSpan(span, err) }()

	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, models.NewValidationError("body", "must set one of priority, duration, estimatedEarnings, notes")
	}

	patch := models.ServicePatch{
		From:      openServiceStatuses,
		Priority:  req.Priority,
		Duration:  req.Duration,
		Estimated: req.EstimatedEarnings,
		Notes:     req.Notes,
		At:        ts.now().UTC(),
	}
	var svc *models.Service
	err = ts.store.WithTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		svc, txErr = ts.store.UpdateService(ctx, id, patch)
		if errors.Is(txErr, models.ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", models.ErrTerminalState, txErr)
		}
		if txErr != nil {
			return txErr
		}
		_, txErr = ts.ledger.Project(ctx, svc)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	ts.logger.InfoContext(ctx, "service updated", "service_id", id, "actor", actor)
	publish(ctx, ts.publisher, ts.logger, events.ServiceUpdated, strconv.FormatInt(id, 10), actor, map[string]any{
		"serviceId": id, "priority": svc.Priority, "duration": svc.Duration, "estimatedEarnings": svc.EstimatedEarnings,
	})
	return svc, nil
}

type RequirementsRequest struct {
	Requirements []string `json:"requirements" validate:"required,min=1,max=20,dive,required,max=500"`
}

// AddSpecialRequirements replaces the work item's special requirements and
// records them as a follow-up note.
func (ts *TrackerService) AddSpecialRequirements(ctx context.Context, id int64, req *RequirementsRequest, actor string) (*models.Service, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	requirements := make([]string, 0, len(req.Requirements))
	for _, r := range req.Requirements {
		if r = strings.TrimSpace(r); r != "" {
			requirements = append(requirements, r)
		}
	}
	if len(requirements) == 0 {
		return nil, models.NewValidationError("requirements", "must contain at least one non-blank entry")
	}

	svc, err := ts.store.UpdateService(ctx, id, models.ServicePatch{Requirements: requirements, At: ts.now().UTC()})
	if err != nil {
		return nil, err
	}
	text := "Special requirements: " + strings.Join(requirements, "; ")
	if _, err := ts.appendNote(ctx, svc, text, models.NoteFollowUp, "medium", "technician"); err != nil {
		return nil, err
	}
	ts.logger.InfoContext(ctx, "special requirements set", "service_id", id, "count", len(requirements), "actor", actor)
	return ts.store.GetService(ctx, id)
}

type RatingRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback,omitempty" validate:"max=1000"`
}

// Rate stores a customer rating on a completed work item and recomputes the
// technician's average.
func (ts *TrackerService) Rate(ctx context.Context, id int64, req *RatingRequest) (*models.Service, error) {
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	patch := models.ServicePatch{
		From:   []models.ServiceStatus{models.ServiceCompleted},
		Rating: &req.Rating,
		At:     ts.now().UTC(),
	}
	if req.Feedback != "" {
		patch.Feedback = &req.Feedback
	}
	svc, err := ts.store.UpdateService(ctx, id, patch)
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil, fmt.Errorf("%w: only completed services can be rated", models.ErrPreconditionFailed)
	}
	if err != nil {
		return nil, err
	}

	ts.recordActivity(ctx, svc, models.ActivityRatingReceived,
		fmt.Sprintf("Received %d-star rating from %s", req.Rating, svc.Customer.Name),
		map[string]any{"rating": req.Rating})

	if _, err := ts.ledger.RefreshTechnicianStats(ctx, svc.EmpID); err != nil {
		return nil, err
	}
	return svc, nil
}

// AddAttachment uploads a file for the work item and records it as a
// technical note.
func (ts *TrackerService) AddAttachment(ctx context.Context, id int64, file io.Reader, filename string) (*models.Service, error) {
	if ts.uploader == nil {
		return nil, fmt.Errorf("%w: attachment storage is not configured", models.ErrPreconditionFailed)
	}
	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := ts.uploader.UploadAttachment(ctx, file, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}
	svc, err = ts.store.UpdateService(ctx, id, models.ServicePatch{AddAttachment: url, At: ts.now().UTC()})
	if err != nil {
		return nil, err
	}
	if _, err := ts.appendNote(ctx, svc, "Attachment added: "+url, models.NoteTechnical, "low", "technician"); err != nil {
		return nil, err
	}
	return ts.store.GetService(ctx, id)
}

type CustomerContact struct {
	Customer    models.Customer `json:"customer"`
	ServiceType string          `json:"serviceType"`
}

func (ts *TrackerService) CustomerContact(ctx context.Context, id int64) (*CustomerContact, error) {
	svc, err := ts.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CustomerContact{Customer: svc.Customer, ServiceType: svc.ServiceType}, nil
}

type ScheduleView struct {
	Services []*models.Service `json:"services"`
	Stats    map[string]int    `json:"stats"`
	View     string            `json:"view"`
	Date     string            `json:"date"`
}

// Schedule lists a technician's work items for the day, week (Sunday first),
// or month containing date. View "all" or an empty date applies no range.
func (ts *TrackerService) Schedule(ctx context.Context, empID int64, view, date, status string) (*ScheduleView, error) {
	if view == "" {
		view = "day"
	}
	f := models.ServiceFilter{EmpID: empID}

	ref := ts.now().UTC()
	if date != "" {
		d, err := ParseDate(date)
		if err != nil {
			return nil, models.NewValidationError("date", "must be a valid date (YYYY-MM-DD)")
		}
		ref = d
		start := dayStart(d)
		var end time.Time
		switch view {
		case "day":
			end = start.AddDate(0, 0, 1)
		case "week":
			start = start.AddDate(0, 0, -int(start.Weekday()))
			end = start.AddDate(0, 0, 7)
		case "month":
			start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
			end = start.AddDate(0, 1, 0)
		case "all":
		default:
			return nil, models.NewValidationError("view", "must be one of: day week month all")
		}
		if !end.IsZero() {
			f.From, f.To = &start, &end
		}
	}
	if status != "" && status != "all" {
		s := models.ServiceStatus(status)
		if !s.Valid() {
			return nil, models.NewValidationError("status", "is not a valid service status")
		}
		f.Statuses = []models.ServiceStatus{s}
	}

	services, err := ts.store.ListServices(ctx, f)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{
		"total":                          len(services),
		string(models.ServiceScheduled):  0,
		string(models.ServiceConfirmed):  0,
		string(models.ServiceInProgress): 0,
		string(models.ServiceCompleted):  0,
		string(models.ServiceCancelled):  0,
	}
	for _, s := range services {
		stats[string(s.Status)]++
	}
	return &ScheduleView{Services: services, Stats: stats, View: view, Date: ref.Format(models.DateLayout)}, nil
}

// Today lists the open work items scheduled for the current UTC day.
func (ts *TrackerService) Today(ctx context.Context, empID int64) ([]*models.Service, error) {
	start := dayStart(ts.now())
	end := start.AddDate(0, 0, 1)
	return ts.store.ListServices(ctx, models.ServiceFilter{
		EmpID:    empID,
		Statuses: []models.ServiceStatus{models.ServiceScheduled, models.ServiceConfirmed, models.ServiceInProgress},
		From:     &start,
		To:       &end,
	})
}

// Upcoming lists scheduled or confirmed work items of the next seven days.
func (ts *TrackerService) Upcoming(ctx context.Context, empID int64, limit int) ([]*models.Service, error) {
	if limit <= 0 {
		limit = 10
	}
	start := dayStart(ts.now())
	end := start.AddDate(0, 0, 8)
	return ts.store.ListServices(ctx, models.ServiceFilter{
		EmpID:    empID,
		Statuses: []models.ServiceStatus{models.ServiceScheduled, models.ServiceConfirmed},
		From:     &start,
		To:       &end,
		Limit:    limit,
	})
}

func (ts *TrackerService) Activities(ctx context.Context, empID int64, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return ts.store.ListActivities(ctx, empID, limit)
}

func (ts *TrackerService) logActivity(ctx context.Context, svc *models.Service, kind models.ActivityType, verb string, metadata map[string]any) {
	msg := fmt.Sprintf("%s %s service for %s", verb, svc.ServiceType, svc.Customer.Name)
	ts.recordActivity(ctx, svc, kind, msg, metadata)
}

// recordActivity writes the audit entry. The transition it describes is
// already stored, so a failure here is logged rather than returned.
func (ts *TrackerService) recordActivity(ctx context.Context, svc *models.Service, kind models.ActivityType, msg string, metadata map[string]any) {
	id, err := ts.store.NextID(ctx, models.SeqActivity)
	if err == nil {
		err = ts.store.InsertActivity(ctx, &models.Activity{
			ActivityID: id,
			EmpID:      svc.EmpID,
			Type:       kind,
			Message:    msg,
			ServiceID:  svc.ServiceID,
			Metadata:   metadata,
			CreatedAt:  ts.now().UTC(),
		})
	}
	if err != nil {
		ts.logger.ErrorContext(ctx, "failed to record activity", "service_id", svc.ServiceID, "type", kind, "error", err)
	}
}
