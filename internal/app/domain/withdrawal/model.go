// Package withdrawal holds the cash-out request types and the fixed
// eligibility constants of the withdrawal gate.
package withdrawal

import "time"

// Status tracks the admin review state of a request. Pending is the only
// state the visitor-facing engine ever writes; approved and rejected are
// terminal and set exclusively by an admin.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Method is the payout channel recorded on a request.
type Method string

const (
	MethodDana         Method = "DANA"
	MethodOvo          Method = "OVO"
	MethodGopay        Method = "GOPAY"
	MethodBankTransfer Method = "Bank Transfer"
)

// DefaultMethod is applied to every gate-created request.
const DefaultMethod = MethodDana

const (
	// ConversionRate is the number of coins per one IDR.
	ConversionRate = 100
	// WithdrawalDay is the only calendar day-of-month the gate opens.
	WithdrawalDay = 30
	// MinimumIDR is the smallest converted balance the gate accepts.
	MinimumIDR = 10000
)

// Request is a recorded cash-out. BalanceCleared marks whether the
// balance-zeroing half of the two-step withdrawal committed; a false value
// on a stored request means the operation was interrupted and the
// reconciler must finish it.
type Request struct {
	ID             string
	ProfileID      string
	Username       string
	AmountIDR      int64
	Method         Method
	Status         Status
	BalanceCleared bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Convert floors a coin balance into whole IDR.
func Convert(coins int64) int64 {
	if coins <= 0 {
		return 0
	}
	return coins / ConversionRate
}
