package models

import (
	"errors"
	"strings"
	"time"
)

// PaymentState represents whether an order has been paid
type PaymentState string

const (
	PaymentStatePaid    PaymentState = "PAID"
	PaymentStatePending PaymentState = "PENDING"
)

// IsValid checks if the payment state is valid
func (p PaymentState) IsValid() bool {
	switch p {
	case PaymentStatePaid, PaymentStatePending:
		return true
	default:
		return false
	}
}

// OrderStatus represents the kanban column an order sits in
type OrderStatus string

const (
	OrderStatusNew          OrderStatus = "new"
	OrderStatusInProduction OrderStatus = "in_production"
	OrderStatusReady        OrderStatus = "ready"
	OrderStatusDelivered    OrderStatus = "delivered"
	OrderStatusCancelled    OrderStatus = "cancelled"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusInProduction, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Sentinel errors shared between the store implementation and its consumers
var (
	// ErrOrderNotFound is returned when no order matches the given id or reference
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateReference is returned when a create hits the unique index on
	// external_reference (concurrent ingestion of the same reference)
	ErrDuplicateReference = errors.New("duplicate external reference")
)

// LineItem represents one produced article on an order
type LineItem struct {
	ID      string `json:"id,omitempty" db:"id"`
	OrderID string `json:"order_id,omitempty" db:"order_id"`

	// Spec-sheet classification
	Family       string `json:"family,omitempty" db:"family"`
	Color        string `json:"color,omitempty" db:"color"`
	PrintSize    string `json:"print_size,omitempty" db:"print_size"`
	LogoPosition string `json:"logo_position,omitempty" db:"logo_position"`

	// Identification
	Reference  string `json:"reference,omitempty" db:"reference"`
	Size       string `json:"size,omitempty" db:"size"`
	Collection string `json:"collection,omitempty" db:"collection"`

	// Visual assets: either a renderable URL or an opaque production code
	FrontImage string `json:"front_image,omitempty" db:"front_image"`
	BackImage  string `json:"back_image,omitempty" db:"back_image"`

	// PRT sub-order block
	PrintRef      string `json:"print_ref,omitempty" db:"print_ref"`
	PrintSize2    string `json:"print_size2,omitempty" db:"print_size2"`
	PrintQuantity *int   `json:"print_quantity,omitempty" db:"print_quantity"`

	UnitPrice float64 `json:"unit_price" db:"unit_price"`
}

// HasPrintBlock reports whether any PRT field is set, which marks the
// sub-order group active for the order-level PRT block
func (li *LineItem) HasPrintBlock() bool {
	return li.PrintRef != "" || li.PrintSize2 != "" || li.PrintQuantity != nil
}

// IsAssetURL reports whether a visual field should render as an image.
// Anything that is not an http(s) or data URL is an opaque production code.
func IsAssetURL(s string) bool {
	return strings.HasPrefix(s, "http") || strings.HasPrefix(s, "data:")
}

// CanonicalOrder is the normalized, validated representation produced by the
// ingest pipeline, before persistence assigns id and timestamps
type CanonicalOrder struct {
	ExternalReference string       `json:"external_reference"`
	CustomerName      string       `json:"customer_name"`
	CustomerFirstName string       `json:"customer_first_name,omitempty"`
	CustomerPhone     string       `json:"customer_phone,omitempty"`
	CustomerAddress   string       `json:"customer_address,omitempty"`
	Deadline          *time.Time   `json:"deadline,omitempty"`
	PaymentState      PaymentState `json:"payment_state"`
	TotalAmount       float64      `json:"total_amount"`
	Note              string       `json:"note,omitempty"`
	Items             []LineItem   `json:"items"`
}

// Order represents a persisted order with its items
type Order struct {
	ID                string       `json:"id" db:"id"`
	ExternalReference string       `json:"external_reference" db:"external_reference"`
	CustomerName      string       `json:"customer_name" db:"customer_name"`
	CustomerFirstName string       `json:"customer_first_name,omitempty" db:"customer_first_name"`
	CustomerPhone     string       `json:"customer_phone,omitempty" db:"customer_phone"`
	CustomerAddress   string       `json:"customer_address,omitempty" db:"customer_address"`
	Deadline          *time.Time   `json:"deadline,omitempty" db:"deadline"`
	PaymentState      PaymentState `json:"payment_state" db:"payment_state"`
	TotalAmount       float64      `json:"total_amount" db:"total_amount"`
	Status            OrderStatus  `json:"status" db:"status"`
	Note              string       `json:"note,omitempty" db:"note"`
	Items             []LineItem   `json:"items"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// IngestUpdate is the restricted mutation applied when a known reference is
// re-ingested. Customer fields, totals and items are deliberately excluded so
// a re-delivered webhook cannot clobber operator edits.
type IngestUpdate struct {
	PaymentState PaymentState
	Note         string
}

// OperatorUpdate represents a dashboard edit; nil fields are left untouched.
// Operator edits are not subject to the ingestion path's restricted policy.
type OperatorUpdate struct {
	Status            *OrderStatus  `json:"status,omitempty"`
	PaymentState      *PaymentState `json:"payment_state,omitempty"`
	CustomerName      *string       `json:"customer_name,omitempty"`
	CustomerFirstName *string       `json:"customer_first_name,omitempty"`
	CustomerPhone     *string       `json:"customer_phone,omitempty"`
	CustomerAddress   *string       `json:"customer_address,omitempty"`
	Deadline          *time.Time    `json:"deadline,omitempty"`
	TotalAmount       *float64      `json:"total_amount,omitempty"`
}

// UpdateNoteRequest represents a dashboard note edit
type UpdateNoteRequest struct {
	Note string `json:"note"`
}

// NoteChangedEvent is the payload broadcast when an operator edits a note
type NoteChangedEvent struct {
	OrderID           string    `json:"order_id"`
	ExternalReference string    `json:"external_reference"`
	Note              string    `json:"note"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FieldError describes a single invalid or missing field in an ingested payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned with 422 on normalization failure
type ValidationErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
