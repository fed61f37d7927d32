package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/session"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusOnTheWay  Status = "on-the-way"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusPreparing, StatusOnTheWay, StatusDelivered, StatusCancelled}

// ParseStatus parses a wire status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("order: unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusOnTheWay, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentEsewa          PaymentMethod = "esewa"
	PaymentKhalti         PaymentMethod = "khalti"
	PaymentCard           PaymentMethod = "card"
)

// PaymentStatus is the backend's view of the payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Party is the customer or vendor side of an order.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is one order line.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the client's read-only copy of a backend order.
type Order struct {
	ID            string        `json:"id"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Customer      Party         `json:"customer"`
	Vendor        Party         `json:"vendor"`
	Items         []Item        `json:"items"`
	TotalAmount   float64       `json:"totalAmount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PaymentConfirmed reports whether forward transitions are allowed:
// cash on delivery, or a payment the backend marked paid.
func (o Order) PaymentConfirmed() bool {
	return o.PaymentMethod == PaymentCashOnDelivery || o.PaymentStatus == PaymentPaid
}

// UnmarshalJSON accepts the id as either "id" or "_id".
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var w struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Order(w.plain)
	if o.ID == "" {
		o.ID = w.LegacyID
	}
	return nil
}

// Reason explains why a transition is blocked.
type Reason string

const (
	ReasonUnknownStatus       Reason = "unknown_status"
	ReasonTerminal            Reason = "terminal"
	ReasonSameStatus          Reason = "same_status"
	ReasonNoSuchTransition    Reason = "no_such_transition"
	ReasonPaymentNotConfirmed Reason = "payment_not_confirmed"
	ReasonRoleNotAllowed      Reason = "role_not_allowed"
)

var reasonMessages = map[Reason]string{
	ReasonUnknownStatus:       "target status is not recognized",
	ReasonTerminal:            "order is already delivered or cancelled",
	ReasonSameStatus:          "order already has this status",
	ReasonNoSuchTransition:    "this status change is not allowed",
	ReasonPaymentNotConfirmed: "payment has not been confirmed",
	ReasonRoleNotAllowed:      "your role cannot make this change",
}

// Message returns a human readable description.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

type edge struct {
	from, to Status
}

// transitions maps each legal edge to whether it needs payment confirmation.
var transitions = map[edge]bool{
	{StatusPending, StatusPreparing}:   true,
	{StatusPreparing, StatusOnTheWay}:  true,
	{StatusOnTheWay, StatusDelivered}:  true,
	{StatusPending, StatusCancelled}:   false,
	{StatusPreparing, StatusCancelled}: false,
	{StatusOnTheWay, StatusCancelled}:  false,
}

// CanTransition reports whether a vendor or admin may move o to target.
func CanTransition(o Order, target Status) bool {
	return len(DescribeBlockers(o, target)) == 0
}

// DescribeBlockers lists why a vendor or admin may not move o to target.
// An empty result means the transition is allowed.
func DescribeBlockers(o Order, target Status) []Reason {
	if !target.Valid() {
		return []Reason{ReasonUnknownStatus}
	}
	if o.Status.Terminal() {
		return []Reason{ReasonTerminal}
	}
	if o.Status == target {
		return []Reason{ReasonSameStatus}
	}
	needsPayment, ok := transitions[edge{o.Status, target}]
	if !ok {
		return []Reason{ReasonNoSuchTransition}
	}
	if needsPayment && !o.PaymentConfirmed() {
		return []Reason{ReasonPaymentNotConfirmed}
	}
	return nil
}

// CanTransitionAs is CanTransition for a specific role.
func CanTransitionAs(role session.Role, o Order, target Status) bool {
	return len(DescribeBlockersAs(role, o, target)) == 0
}

// DescribeBlockersAs is DescribeBlockers for a specific role. Vendors and
// admins follow the transition table; customers may only cancel a pending
// order.
func DescribeBlockersAs(role session.Role, o Order, target Status) []Reason {
	switch role {
	case session.RoleVendor, session.RoleAdmin:
		return DescribeBlockers(o, target)
	case session.RoleCustomer:
		blockers := DescribeBlockers(o, target)
		if len(blockers) > 0 {
			return blockers
		}
		if target != StatusCancelled || o.Status != StatusPending {
			return []Reason{ReasonRoleNotAllowed}
		}
		return nil
	default:
		return []Reason{ReasonRoleNotAllowed}
	}
}

// AvailableTransitions returns the targets role may move o to, in lifecycle
// order. Dashboards use it to enable actions.
func AvailableTransitions(role session.Role, o Order) []Status {
	var out []Status
	for _, s := range Statuses {
		if CanTransitionAs(role, o, s) {
			out = append(out, s)
		}
	}
	return out
}

// Validate returns a TransitionPrecondition error when role may not move o
// to target.
func Validate(role session.Role, o Order, target Status) error {
	blockers := DescribeBlockersAs(role, o, target)
	if len(blockers) == 0 {
		return nil
	}
	msgs := make([]string, len(blockers))
	for i, r := range blockers {
		msgs[i] = r.Message()
	}
	return apperr.Precondition(msgs...).WithOp("order.transition")
}
