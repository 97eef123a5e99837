package models

import "time"

type ServiceStatus string

const (
	ServiceScheduled  ServiceStatus = "scheduled"
	ServiceConfirmed  ServiceStatus = "confirmed"
	ServiceInProgress ServiceStatus = "in_progress"
	ServiceCompleted  ServiceStatus = "completed"
	ServiceCancelled  ServiceStatus = "cancelled"
)

var serviceTransitions = map[ServiceStatus][]ServiceStatus{
	ServiceScheduled:  {ServiceConfirmed, ServiceCancelled},
	ServiceConfirmed:  {ServiceInProgress, ServiceCancelled},
	ServiceInProgress: {ServiceCompleted, ServiceCancelled},
}

func (s ServiceStatus) IsTerminal() bool {
	return s == ServiceCompleted || s == ServiceCancelled
}

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceScheduled, ServiceConfirmed, ServiceInProgress, ServiceCompleted, ServiceCancelled:
		return true
	}
	return false
}

func (s ServiceStatus) CanTransition(to ServiceStatus) bool {
	for _, next := range serviceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

var ServiceTypes = []string{
	"Plumbing", "AC Repair", "Appliance Repair", "Drain Cleaning",
	"Electrical", "Emergency Plumbing", "Cleaning", "Other",
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
)

type Customer struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
	Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email   string `bson:"email,omitempty" json:"email,omitempty"`
}

// Service is the technician-facing work item.
type Service struct {
	ServiceID         int64         `bson:"_id" json:"serviceId"`
	EmpID             int64         `bson:"emp_id" json:"empId"`
	BookingID         string        `bson:"booking_id,omitempty" json:"bookingId,omitempty"`
	Title             string        `bson:"title" json:"title"`
	Description       string        `bson:"description,omitempty" json:"description,omitempty"`
	ServiceType       string        `bson:"service_type" json:"serviceType"`
	Customer          Customer      `bson:"customer" json:"customer"`
	ScheduledDate     time.Time     `bson:"scheduled_date" json:"scheduledDate"`
	Time              string        `bson:"time" json:"time"`
	Duration          float64       `bson:"duration" json:"duration"`
	Status            ServiceStatus `bson:"status" json:"status"`
	StartedAt         *time.Time    `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedDate     *time.Time    `bson:"completed_date,omitempty" json:"completedDate,omitempty"`
	EstimatedEarnings float64       `bson:"estimated_earnings" json:"estimatedEarnings"`
	ActualEarnings    *float64      `bson:"actual_earnings,omitempty" json:"actualEarnings,omitempty"`
	PaymentStatus     string        `bson:"payment_status" json:"paymentStatus"`
	Priority          string        `bson:"priority" json:"priority"`
	Notes             string        `bson:"notes,omitempty" json:"notes,omitempty"`
	Attachments       []string      `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Requirements      []string      `bson:"special_requirements,omitempty" json:"specialRequirements,omitempty"`
	Rating            *int          `bson:"rating,omitempty" json:"rating,omitempty"`
	Feedback          string        `bson:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt         time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `bson:"updated_at" json:"updatedAt"`
}

// ServicePatch is a guarded update of a work item. From restricts the update
// to the listed statuses; an empty From applies regardless of status.
type ServicePatch struct {
	From            []ServiceStatus
	Status          *ServiceStatus
	ScheduledDate   *time.Time
	Time            *string
	StartedAt       *time.Time
	CompletedDate   *time.Time
	ActualEarnings  *float64
	PaymentStatus   *string
	Notes           *string
	Priority        *string
	Duration        *float64
	Estimated       *float64
	Requirements    []string
	Rating          *int
	Feedback        *string
	AddAttachment   string
	ClearCompletion bool
	At              time.Time
}

type ServiceFilter struct {
	EmpID         int64
	CustomerEmail string
	ExcludeID     int64
	Statuses      []ServiceStatus
	From          *time.Time
	To            *time.Time
	Rated         bool
	// NewestFirst sorts by scheduled date descending.
	NewestFirst bool
	Limit       int
}

type NoteType string

const (
	NoteGeneral               NoteType = "general"
	NoteCustomerCommunication NoteType = "customer_communication"
	NoteTechnical             NoteType = "technical"
	NoteFollowUp              NoteType = "follow_up"
)

type ServiceNote struct {
	NoteID    int64     `bson:"_id" json:"noteId"`
	ServiceID int64     `bson:"service_id" json:"serviceId"`
	EmpID     int64     `bson:"emp_id" json:"empId"`
	Note      string    `bson:"note" json:"note"`
	Type      NoteType  `bson:"type" json:"type"`
	Priority  string    `bson:"priority" json:"priority"`
	CreatedBy string    `bson:"created_by" json:"createdBy"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type ActivityType string

const (
	ActivityServiceCompleted ActivityType = "service_completed"
	ActivityRatingReceived   ActivityType = "rating_received"
	ActivityServiceScheduled ActivityType = "service_scheduled"
	ActivityPaymentReceived  ActivityType = "payment_received"
	ActivityProfileUpdated   ActivityType = "profile_updated"
)

type Activity struct {
	ActivityID int64          `bson:"_id" json:"activityId"`
	EmpID      int64          `bson:"emp_id" json:"empId"`
	Type       ActivityType   `bson:"type" json:"type"`
	Message    string         `bson:"message" json:"message"`
	ServiceID  int64          `bson:"service_id,omitempty" json:"serviceId,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"createdAt"`
}
