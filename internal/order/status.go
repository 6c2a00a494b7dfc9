package order

import "fmt"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending      Status = "pending"
	StatusVerification Status = "verification"
	StatusAccepted     Status = "accepted"
	StatusPreparing    Status = "preparing"
	StatusTreatment    Status = "treatment"
	StatusProgression  Status = "progression"
	StatusDelivering   Status = "delivering"
	StatusDelivered    Status = "delivered"
	StatusRefused      Status = "refused"
	StatusUnavailable  Status = "unavailable"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusVerification,
	StatusAccepted,
	StatusPreparing,
	StatusTreatment,
	StatusProgression,
	StatusDelivering,
	StatusDelivered,
	StatusRefused,
	StatusUnavailable,
}

// Terminal reports whether the status ends the delivery lifecycle. Reaching a
// terminal status archives the order automatically.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRefused, StatusUnavailable:
		return true
	}
	return false
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status: %q", raw)
	}
	return s, nil
}
