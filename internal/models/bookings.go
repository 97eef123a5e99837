package models

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingAssigned   BookingStatus = "assigned"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingAssigned, BookingCancelled},
	BookingAssigned:   {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingAssigned, BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// CanTransition reports whether to is adjacent to s in the booking lifecycle.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveBookingStatuses hold their slot.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingAssigned, BookingInProgress}

type ServiceDetails struct {
	Title    string  `bson:"title" json:"title" validate:"required"`
	Price    float64 `bson:"price" json:"price" validate:"gte=0"`
	Duration float64 `bson:"duration,omitempty" json:"duration,omitempty" validate:"gte=0"`
	Category string  `bson:"category,omitempty" json:"category,omitempty"`
}

type ContactInfo struct {
	FullName    string `bson:"full_name" json:"fullName" validate:"required,max=100"`
	PhoneNumber string `bson:"phone_number" json:"phoneNumber" validate:"required,phone"`
	Email       string `bson:"email" json:"email" validate:"required,email"`
}

type BookingLocation struct {
	Country         string `bson:"country" json:"country" validate:"required,max=100"`
	State           string `bson:"state" json:"state" validate:"required,max=100"`
	City            string `bson:"city" json:"city" validate:"required,max=100"`
	Area            string `bson:"area" json:"area" validate:"required,max=100"`
	CompleteAddress string `bson:"complete_address" json:"completeAddress" validate:"required,max=500"`
}

type BookingSchedule struct {
	PreferredDate time.Time `bson:"preferred_date" json:"preferredDate"`
	TimeSlot      string    `bson:"time_slot" json:"timeSlot"`
}

type BookingPayment struct {
	Method      string     `bson:"method" json:"method"`
	Status      string     `bson:"status" json:"status"`
	Amount      float64    `bson:"amount" json:"amount"`
	Currency    string     `bson:"currency" json:"currency"`
	PaymentDate *time.Time `bson:"payment_date,omitempty" json:"paymentDate,omitempty"`
}

const (
	BookingPaymentPending  = "pending"
	BookingPaymentPaid     = "paid"
	BookingPaymentFailed   = "failed"
	BookingPaymentRefunded = "refunded"

	DefaultCurrency = "INR"
)

type BookingRating struct {
	Score     int       `bson:"score" json:"score"`
	Review    string    `bson:"review,omitempty" json:"review,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type StatusChange struct {
	From  string    `bson:"from" json:"from"`
	To    string    `bson:"to" json:"to"`
	Actor string    `bson:"actor,omitempty" json:"actor,omitempty"`
	At    time.Time `bson:"at" json:"at"`
}

type Booking struct {
	ID                  string          `bson:"_id" json:"bookingId"`
	CustomerID          string          `bson:"customer_id,omitempty" json:"customerId,omitempty"`
	ServiceID           string          `bson:"service_id,omitempty" json:"serviceId,omitempty"`
	ServiceDetails      ServiceDetails  `bson:"service_details" json:"serviceDetails"`
	ContactInfo         ContactInfo     `bson:"contact_info" json:"contactInfo"`
	Location            BookingLocation `bson:"location" json:"location"`
	Schedule            BookingSchedule `bson:"schedule" json:"schedule"`
	SpecialInstructions string          `bson:"special_instructions,omitempty" json:"specialInstructions,omitempty"`
	Payment             BookingPayment  `bson:"payment" json:"payment"`
	Status              BookingStatus   `bson:"status" json:"status"`
	ActiveSlot          string          `bson:"active_slot,omitempty" json:"-"`
	AssignedTo          int64           `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	WorkItemID          int64           `bson:"work_item_id,omitempty" json:"workItemId,omitempty"`
	CancellationReason  string          `bson:"cancellation_reason,omitempty" json:"cancellationReason,omitempty"`
	Rating              *BookingRating  `bson:"rating,omitempty" json:"rating,omitempty"`
	CompletedAt         *time.Time      `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	StatusHistory       []StatusChange  `bson:"status_history,omitempty" json:"statusHistory,omitempty"`
	CreatedAt           time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt           time.Time       `bson:"updated_at" json:"updatedAt"`
}

// SlotKey normalizes the (date, time slot, city, area) tuple that at most one
// active booking may hold.
func SlotKey(date time.Time, timeSlot, city, area string) string {
	return strings.Join([]string{
		date.UTC().Format(DateLayout),
		NormalizeSlot(timeSlot),
		NormalizeSlot(city),
		NormalizeSlot(area),
	}, "|")
}

// NormalizeSlot lowercases s and collapses its whitespace.
func NormalizeSlot(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

const DateLayout = "2006-01-02"

// BookingPatch describes a guarded status change. Only the listed fields are
// written; ReleaseSlot frees the admission-control key.
type BookingPatch struct {
	From               BookingStatus
	To                 BookingStatus
	Actor              string
	At                 time.Time
	AssignedTo         *int64
	WorkItemID         *int64
	CancellationReason *string
	CompletedAt        *time.Time
	PaymentStatus      *string
	PaymentDate        *time.Time
	ReleaseSlot        bool
}

type BookingFilter struct {
	CustomerID string
	Status     BookingStatus
	Date       *time.Time
	Limit      int
}

type SlotQuery struct {
	Date time.Time
	City string
	Area string
}
