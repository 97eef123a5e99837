package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-process Store. Every call holds one mutex, which gives
// the same admission and compare-and-set guarantees the MongoDB indexes give a
// single instance.
type MemoryRepo struct {
	mu sync.Mutex

	bookings    map[string]*Booking
	activeSlots map[string]string

	services         map[int64]*Service
	serviceByBooking map[string]int64
	notes            map[int64]*ServiceNote
	activities       []*Activity

	payments         map[int64]*Payment
	paymentByService map[int64]int64
	upcoming         map[int64]*UpcomingPayment

	employees map[int64]*TechnicianStats
	counters  map[string]int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		bookings:         make(map[string]*Booking),
		activeSlots:      make(map[string]string),
		services:         make(map[int64]*Service),
		serviceByBooking: make(map[string]int64),
		notes:            make(map[int64]*ServiceNote),
		payments:         make(map[int64]*Payment),
		paymentByService: make(map[int64]int64),
		upcoming:         make(map[int64]*UpcomingPayment),
		employees:        make(map[int64]*TechnicianStats),
		counters:         make(map[string]int64),
	}
}

var _ Store = (*MemoryRepo)(nil)

func (m *MemoryRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MemoryRepo) NextID(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return SequenceStart(name) + m.counters[name] - 1, nil
}

func cloneBooking(b *Booking) *Booking {
	c := *b
	c.StatusHistory = append([]StatusChange(nil), b.StatusHistory...)
	if b.Rating != nil {
		r := *b.Rating
		c.Rating = &r
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	if b.Payment.PaymentDate != nil {
		t := *b.Payment.PaymentDate
		c.Payment.PaymentDate = &t
	}
	return &c
}

func (m *MemoryRepo) InsertBooking(ctx context.Context, b *Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[b.ID]; ok {
		return fmt.Errorf("%w: duplicate booking id %s", ErrStorageUnavailable, b.ID)
	}
	if b.ActiveSlot != "" {
		if _, taken := m.activeSlots[b.ActiveSlot]; taken {
			return fmt.Errorf("%w: %s on %s", ErrSlotConflict, b.Schedule.TimeSlot, b.Schedule.PreferredDate.Format(DateLayout))
		}
		m.activeSlots[b.ActiveSlot] = b.ID
	}
	m.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (m *MemoryRepo) GetBooking(ctx context.Context, id string) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	return cloneBooking(b), nil
}

func (m *MemoryRepo) ListBookings(ctx context.Context, f BookingFilter) ([]*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Booking{}
	for _, b := range m.bookings {
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Date != nil && !startOfDay(b.Schedule.PreferredDate).Equal(startOfDay(*f.Date)) {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) BookedSlots(ctx context.Context, q SlotQuery) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := []string{}
	for key := range m.activeSlots {
		if slot, ok := SlotMatches(key, q); ok {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (m *MemoryRepo) UpdateBookingStatus(ctx context.Context, id string, p BookingPatch) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	if b.Status != p.From {
		return nil, fmt.Errorf("%w: booking %s is %s, expected %s", ErrInvalidTransition, id, b.Status, p.From)
	}

	b.Status = p.To
	b.UpdatedAt = p.At
	if p.AssignedTo != nil {
		b.AssignedTo = *p.AssignedTo
	}
	if p.WorkItemID != nil {
		b.WorkItemID = *p.WorkItemID
	}
	if p.CancellationReason != nil {
		b.CancellationReason = *p.CancellationReason
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		b.CompletedAt = &t
	}
	if p.PaymentStatus != nil {
		b.Payment.Status = *p.PaymentStatus
	}
	if p.PaymentDate != nil {
		t := *p.PaymentDate
		b.Payment.PaymentDate = &t
	}
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		From: string(p.From), To: string(p.To), Actor: p.Actor, At: p.At,
	})
	if p.ReleaseSlot && b.ActiveSlot != "" {
		delete(m.activeSlots, b.ActiveSlot)
		b.ActiveSlot = ""
	}
	return cloneBooking(b), nil
}

func (m *MemoryRepo) SetBookingRating(ctx context.Context, id string, r BookingRating) (*Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, notFound("booking", id)
	}
	if b.Status != BookingCompleted {
		return nil, fmt.Errorf("%w: booking %s is %s, reviews need a completed booking", ErrPreconditionFailed, id, b.Status)
	}
	b.Rating = &r
	b.UpdatedAt = r.CreatedAt
	return cloneBooking(b), nil
}

func (m *MemoryRepo) DeleteBooking(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return notFound("booking", id)
	}
	if b.ActiveSlot != "" {
		delete(m.activeSlots, b.ActiveSlot)
	}
	delete(m.bookings, id)
	return nil
}

func cloneService(s *Service) *Service {
	c := *s
	c.Attachments = append([]string(nil), s.Attachments...)
	c.Requirements = append([]string(nil), s.Requirements...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedDate != nil {
		t := *s.CompletedDate
		c.CompletedDate = &t
	}
	if s.ActualEarnings != nil {
		v := *s.ActualEarnings
		c.ActualEarnings = &v
	}
	if s.Rating != nil {
		v := *s.Rating
		c.Rating = &v
	}
	return &c
}

func (m *MemoryRepo) InsertService(ctx context.Context, s *Service) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.BookingID != "" {
		if _, ok := m.serviceByBooking[s.BookingID]; ok {
			return fmt.Errorf("%w: booking %s already has a work item", ErrPreconditionFailed, s.BookingID)
		}
		m.serviceByBooking[s.BookingID] = s.ServiceID
	}
	m.services[s.ServiceID] = cloneService(s)
	return nil
}

func (m *MemoryRepo) GetService(ctx context.Context, id int64) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	return cloneService(s), nil
}

func (m *MemoryRepo) GetServiceByBooking(ctx context.Context, bookingID string) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.serviceByBooking[bookingID]
	if !ok {
		return nil, notFound("service", bookingID)
	}
	return cloneService(m.services[id]), nil
}

func (m *MemoryRepo) UpdateService(ctx context.Context, id int64, p ServicePatch) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	if len(p.From) > 0 && !containsStatus(p.From, s.Status) {
		return nil, fmt.Errorf("%w: service %d is %s", ErrInvalidTransition, id, s.Status)
	}

	s.UpdatedAt = p.At
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ScheduledDate != nil {
		s.ScheduledDate = *p.ScheduledDate
	}
	if p.Time != nil {
		s.Time = *p.Time
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		s.StartedAt = &t
	}
	if p.ClearCompletion {
		s.CompletedDate = nil
		s.ActualEarnings = nil
	}
	if p.CompletedDate != nil {
		t := *p.CompletedDate
		s.CompletedDate = &t
	}
	if p.ActualEarnings != nil {
		v := *p.ActualEarnings
		s.ActualEarnings = &v
	}
	if p.PaymentStatus != nil {
		s.PaymentStatus = *p.PaymentStatus
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.Duration != nil {
		s.Duration = *p.Duration
	}
	if p.Estimated != nil {
		s.EstimatedEarnings = *p.Estimated
	}
	if p.Requirements != nil {
		s.Requirements = append([]string(nil), p.Requirements...)
	}
	if p.Rating != nil {
		v := *p.Rating
		s.Rating = &v
	}
	if p.Feedback != nil {
		s.Feedback = *p.Feedback
	}
	if p.AddAttachment != "" {
		s.Attachments = append(s.Attachments, p.AddAttachment)
	}
	return cloneService(s), nil
}

func containsStatus(list []ServiceStatus, s ServiceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryRepo) ListServices(ctx context.Context, f ServiceFilter) ([]*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Service{}
	for _, s := range m.services {
		if f.EmpID != 0 && s.EmpID != f.EmpID {
			continue
		}
		if f.CustomerEmail != "" && s.Customer.Email != f.CustomerEmail {
			continue
		}
		if f.ExcludeID != 0 && s.ServiceID == f.ExcludeID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
			continue
		}
		if f.From != nil && s.ScheduledDate.Before(*f.From) {
			continue
		}
		if f.To != nil && !s.ScheduledDate.Before(*f.To) {
			continue
		}
		if f.Rated && s.Rating == nil {
			continue
		}
		out = append(out, cloneService(s))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.NewestFirst {
			a, b = b, a
		}
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		return a.Time < b.Time
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) InsertNote(ctx context.Context, n *ServiceNote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[n.NoteID]; ok {
		return fmt.Errorf("%w: duplicate note id %d", ErrStorageUnavailable, n.NoteID)
	}
	c := *n
	m.notes[n.NoteID] = &c
	return nil
}

func (m *MemoryRepo) ListNotes(ctx context.Context, serviceID int64) ([]*ServiceNote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*ServiceNote{}
	for _, n := range m.notes {
		if n.ServiceID == serviceID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NoteID > out[j].NoteID })
	return out, nil
}

func (m *MemoryRepo) InsertActivity(ctx context.Context, a *Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *a
	m.activities = append(m.activities, &c)
	return nil
}

func (m *MemoryRepo) ListActivities(ctx context.Context, empID int64, limit int) ([]*Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Activity{}
	for i := len(m.activities) - 1; i >= 0; i-- {
		if m.activities[i].EmpID != empID {
			continue
		}
		c := *m.activities[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRepo) InsertPayment(ctx context.Context, p *Payment) (*Payment, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.paymentByService[p.ServiceID]; ok {
		c := *m.payments[id]
		return &c, false, nil
	}
	stored := *p
	m.payments[p.PaymentID] = &stored
	m.paymentByService[p.ServiceID] = p.PaymentID
	c := stored
	return &c, true, nil
}

func (m *MemoryRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	c := *p
	return &c, nil
}

func (m *MemoryRepo) GetPaymentByService(ctx context.Context, serviceID int64) (*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.paymentByService[serviceID]
	if !ok {
		return nil, notFound("payment", fmt.Sprintf("for service %d", serviceID))
	}
	c := *m.payments[id]
	return &c, nil
}

func (m *MemoryRepo) ListPayments(ctx context.Context, f PaymentFilter) ([]*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Payment{}
	for _, p := range m.payments {
		if p.EmpID != f.EmpID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.From != nil && p.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && p.Date.After(*f.To) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].PaymentID > out[j].PaymentID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) UpdatePaymentStatus(ctx context.Context, id int64, status string, at time.Time) (*Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	p.Status = status
	p.UpdatedAt = at
	c := *p
	return &c, nil
}

func (m *MemoryRepo) UpsertUpcoming(ctx context.Context, u *UpcomingPayment) (*UpcomingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *u
	if existing, ok := m.upcoming[u.ServiceID]; ok {
		stored.UpcomingID = existing.UpcomingID
		stored.CreatedAt = existing.CreatedAt
	}
	m.upcoming[u.ServiceID] = &stored
	c := stored
	return &c, nil
}

func (m *MemoryRepo) ListUpcoming(ctx context.Context, empID int64) ([]*UpcomingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*UpcomingPayment{}
	for _, u := range m.upcoming {
		if u.EmpID == empID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (m *MemoryRepo) DeleteUpcomingByService(ctx context.Context, serviceID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.upcoming, serviceID)
	return nil
}

func (m *MemoryRepo) GetEmployeeStats(ctx context.Context, empID int64) (*TechnicianStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.employees[empID]
	if !ok {
		return nil, notFound("employee stats", empID)
	}
	c := *s
	return &c, nil
}

func (m *MemoryRepo) SaveEmployeeStats(ctx context.Context, s *TechnicianStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.employees[s.EmpID] = &c
	return nil
}

// MemoryReference is an in-process ReferenceStore.
type MemoryReference struct {
	mu        sync.RWMutex
	catalog   map[string]*CatalogService
	locations map[LocationKind]map[int64]*Location
	nextID    int64
}

func NewMemoryReference() *MemoryReference {
	return &MemoryReference{
		catalog: make(map[string]*CatalogService),
		locations: map[LocationKind]map[int64]*Location{
			KindCountry: {}, KindState: {}, KindCity: {}, KindArea: {},
		},
	}
}

var _ ReferenceStore = (*MemoryReference)(nil)

func (r *MemoryReference) PutCatalogService(c *CatalogService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.TimeSlots = append([]string(nil), c.TimeSlots...)
	r.catalog[c.ID] = &cp
}

func (r *MemoryReference) GetCatalogService(ctx context.Context, id string) (*CatalogService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.catalog[id]
	if !ok {
		return nil, notFound("service", id)
	}
	cp := *c
	cp.TimeSlots = append([]string(nil), c.TimeSlots...)
	return &cp, nil
}

func (r *MemoryReference) ListLocations(ctx context.Context, kind LocationKind, parentID *int64) ([]*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Location{}
	for _, l := range r.locations[kind] {
		if parentID != nil && (l.ParentID == nil || *l.ParentID != *parentID) {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (r *MemoryReference) CreateLocation(ctx context.Context, kind LocationKind, loc *Location) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, ok := r.locations[kind]
	if !ok {
		return nil, notFound("location kind", kind)
	}
	r.nextID++
	c := *loc
	c.ID = r.nextID
	rows[c.ID] = &c
	out := c
	return &out, nil
}

func (r *MemoryReference) UpdateLocation(ctx context.Context, kind LocationKind, id int64, loc *Location) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[kind][id]; !ok {
		return nil, notFound(string(kind), id)
	}
	c := *loc
	c.ID = id
	r.locations[kind][id] = &c
	out := c
	return &out, nil
}

func (r *MemoryReference) DeleteLocation(ctx context.Context, kind LocationKind, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[kind][id]; !ok {
		return notFound(string(kind), id)
	}
	delete(r.locations[kind], id)
	return nil
}
