package services

import "errors"

// Order status vocabulary. Orders only ever move forward through this
// sequence; Delivered is reachable solely through OTP verification.
const (
	StatusPlaced     = "Placed"
	StatusConfirmed  = "Confirmed"
	StatusDispatched = "Dispatched"
	StatusDelivered  = "Delivered"
)

var statusSequence = []string{StatusPlaced, StatusConfirmed, StatusDispatched, StatusDelivered}

var (
	// ErrUnknownStatus is returned for a status outside the vocabulary.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrBackwardTransition is returned when a target status precedes the current one.
	ErrBackwardTransition = errors.New("order status cannot move backward")
	// ErrDeliveredDirect is returned for a direct write of Delivered,
	// which only the OTP workflow may perform.
	ErrDeliveredDirect = errors.New("Delivered is only reachable through OTP verification")
)

// StatusRank returns the position of a status in the forward
// sequence, or -1 for an unknown status.
func StatusRank(status string) int {
	for i, s := range statusSequence {
		if s == status {
			return i
		}
	}
	return -1
}

// ValidStatus reports whether status belongs to the vocabulary.
func ValidStatus(status string) bool {
	return StatusRank(status) >= 0
}

// CanAdvance validates a seller-initiated transition from current to
// target. The target must be a known status at or past the current
// position, and must not be Delivered.
func CanAdvance(current, target string) error {
	targetRank := StatusRank(target)
	if targetRank < 0 {
		return ErrUnknownStatus
	}
	if target == StatusDelivered {
		return ErrDeliveredDirect
	}
	currentRank := StatusRank(current)
	if currentRank < 0 {
		return ErrUnknownStatus
	}
	if targetRank < currentRank {
		return ErrBackwardTransition
	}
	return nil
}
