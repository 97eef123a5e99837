package models

import "time"

const (
	PaymentCompleted = "completed"
	PaymentPending   = "pending"
	PaymentCancelled = "cancelled"
)

var PaymentStatuses = []string{PaymentCompleted, PaymentPending, PaymentCancelled}

const (
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodCash         = "cash"
	PaymentMethodBankTransfer = "bank_transfer"
)

var PaymentMethods = []string{PaymentMethodCreditCard, PaymentMethodCash, PaymentMethodBankTransfer}

type PaymentCustomer struct {
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// Payment is the finalized earnings record of one completed work item.
type Payment struct {
	PaymentID     int64           `bson:"_id" json:"paymentId"`
	EmpID         int64           `bson:"emp_id" json:"empId"`
	ServiceID     int64           `bson:"service_id" json:"serviceId"`
	Customer      PaymentCustomer `bson:"customer" json:"customer"`
	ServiceType   string          `bson:"service_type" json:"serviceType"`
	Amount        float64         `bson:"amount" json:"amount"`
	Commission    float64         `bson:"commission" json:"commission"`
	BaseRate      float64         `bson:"base_rate" json:"baseRate"`
	Bonus         float64         `bson:"bonus" json:"bonus"`
	Hours         float64         `bson:"hours" json:"hours"`
	Date          time.Time       `bson:"date" json:"date"`
	Status        string          `bson:"status" json:"status"`
	PaymentMethod string          `bson:"payment_method" json:"paymentMethod"`
	TransactionID string          `bson:"transaction_id,omitempty" json:"transactionId,omitempty"`
	Notes         string          `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt     time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `bson:"updated_at" json:"updatedAt"`
}

const (
	UpcomingScheduled  = "scheduled"
	UpcomingConfirmed  = "confirmed"
	UpcomingInProgress = "in-progress"
)

// UpcomingPayment projects the expected earnings of a still-open work item.
type UpcomingPayment struct {
	UpcomingID      int64           `bson:"_id" json:"upcomingId"`
	EmpID           int64           `bson:"emp_id" json:"empId"`
	ServiceID       int64           `bson:"service_id" json:"serviceId"`
	Customer        PaymentCustomer `bson:"customer" json:"customer"`
	ServiceType     string          `bson:"service_type" json:"serviceType"`
	EstimatedAmount float64         `bson:"estimated_amount" json:"estimatedAmount"`
	ScheduledDate   time.Time       `bson:"scheduled_date" json:"scheduledDate"`
	Status          string          `bson:"status" json:"status"`
	Hours           float64         `bson:"hours" json:"hours"`
	Address         string          `bson:"address,omitempty" json:"address,omitempty"`
	Notes           string          `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updatedAt"`
}

// UpcomingStatusFor maps a work item status onto the projection's vocabulary.
func UpcomingStatusFor(s ServiceStatus) string {
	switch s {
	case ServiceConfirmed:
		return UpcomingConfirmed
	case ServiceInProgress:
		return UpcomingInProgress
	default:
		return UpcomingScheduled
	}
}

type PaymentFilter struct {
	EmpID  int64
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
}
