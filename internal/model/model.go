package model

import (
	"github.com/shopspring/decimal"
)

// FeeMultiplier converts a flat fee into the total bill.
const FeeMultiplier = 30

const PaymentStatusPending = "pending"

type User struct {
	ID          string `json:"_id"`
	FirstName   string `json:"fname"`
	LastName    string `json:"lname"`
	ResidenceID string `json:"residenceId"`
}

type Payment struct {
	ID         string          `json:"_id"`
	UserID     string          `json:"userId"`
	FirstName  string          `json:"fname"`
	LastName   string          `json:"lname"`
	FlatFee    decimal.Decimal `json:"flatFee"`
	PaybackFee decimal.Decimal `json:"paybackFee"`
	TotalBill  decimal.Decimal `json:"totalBill"`
	Status     string          `json:"status"`
	Date       string          `json:"date"`
}

// TotalFor returns the bill derived from a flat fee.
func TotalFor(flatFee decimal.Decimal) decimal.Decimal {
	return flatFee.Mul(decimal.NewFromInt(FeeMultiplier))
}

// UserPayment is one historical payment transaction of a user.
type UserPayment struct {
	ID            string `json:"_id"`
	UserID        string `json:"userId"`
	TotalAmount   string `json:"totalAmount"`
	PaymentStatus string `json:"paymentStatus"`
	CreatedAt     string `json:"createdAt"`
}

type WasteRecord struct {
	ResidenceID string `json:"residenceId"`
	WasteType   string `json:"wasteType"`
}

type WasteType struct {
	Label string `json:"wastetype"`
}

type Schedule struct {
	ID          string `json:"_id,omitempty"`
	FirstName   string `json:"fname"`
	LastName    string `json:"lname"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	CDate       string `json:"cdate"`
	Area        string `json:"area"`
	Timeslot    string `json:"timeslot"`
	Type        string `json:"type"`
	Description string `json:"description"`
	JobStatus   bool   `json:"jobstatus"`
	UserID      string `json:"userid"`
	ResidenceID string `json:"residenceID"`
}

// ScheduleDraft is the user-editable part of a Schedule. Field order is
// validation order.
type ScheduleDraft struct {
	FirstName   string `json:"fname" validate:"personname"`
	LastName    string `json:"lname" validate:"personname"`
	Mobile      string `json:"mobile" validate:"mobile"`
	Email       string `json:"email" validate:"emailaddr"`
	CDate       string `json:"cdate" validate:"notpast"`
	Description string `json:"description" validate:"description"`
	Area        string `json:"area" validate:"area"`
	Timeslot    string `json:"timeslot" validate:"timeslot"`
	Type        string `json:"type" validate:"wastetype"`
}

// Draft field names as used by the forms.
const (
	FieldFirstName   = "fname"
	FieldLastName    = "lname"
	FieldMobile      = "mobile"
	FieldEmail       = "email"
	FieldCDate       = "cdate"
	FieldArea        = "area"
	FieldTimeslot    = "timeslot"
	FieldType        = "type"
	FieldDescription = "description"
)

// Set assigns a draft field by its form name.
func (d *ScheduleDraft) Set(field, value string) bool {
	switch field {
	case FieldFirstName:
		d.FirstName = value
	case FieldLastName:
		d.LastName = value
	case FieldMobile:
		d.Mobile = value
	case FieldEmail:
		d.Email = value
	case FieldCDate:
		d.CDate = value
	case FieldArea:
		d.Area = value
	case FieldTimeslot:
		d.Timeslot = value
	case FieldType:
		d.Type = value
	case FieldDescription:
		d.Description = value
	default:
		return false
	}
	return true
}

// DraftFrom copies the editable fields of a schedule.
func DraftFrom(s Schedule) ScheduleDraft {
	return ScheduleDraft{
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		Mobile:      s.Mobile,
		Email:       s.Email,
		CDate:       s.CDate,
		Area:        s.Area,
		Timeslot:    s.Timeslot,
		Type:        s.Type,
		Description: s.Description,
	}
}

// Apply returns s with the draft fields copied over it.
func (d ScheduleDraft) Apply(s Schedule) Schedule {
	s.FirstName = d.FirstName
	s.LastName = d.LastName
	s.Mobile = d.Mobile
	s.Email = d.Email
	s.CDate = d.CDate
	s.Area = d.Area
	s.Timeslot = d.Timeslot
	s.Type = d.Type
	s.Description = d.Description
	return s
}

// PaymentRow is one denormalized line of the payment dashboard.
type PaymentRow struct {
	PaymentID  string          `json:"paymentId"`
	UserID     string          `json:"userId"`
	FirstName  string          `json:"fname"`
	LastName   string          `json:"lname"`
	WasteType  string          `json:"wasteType"`
	FlatFee    decimal.Decimal `json:"flatFee"`
	PaybackFee decimal.Decimal `json:"paybackFee"`
	TotalBill  decimal.Decimal `json:"totalBill"`
	Status     string          `json:"status"`
}

// Request/Response DTOs
type FieldChangeRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type CreatePaymentRequest struct {
	UserID     string          `json:"userId" binding:"required"`
	FlatFee    decimal.Decimal `json:"flatFee"`
	PaybackFee decimal.Decimal `json:"paybackFee"`
}

type UpdatePaymentRequest struct {
	FlatFee    decimal.Decimal `json:"flatFee"`
	PaybackFee decimal.Decimal `json:"paybackFee"`
}

type PaymentDetail struct {
	ID            string          `json:"_id"`
	Date          string          `json:"date"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentStatus string          `json:"paymentStatus"`
	Completed     bool            `json:"completed"`
}

type ScheduleOptions struct {
	Areas      []string `json:"areas"`
	Timeslots  []string `json:"timeslots"`
	WasteTypes []string `json:"wasteTypes"`
}
