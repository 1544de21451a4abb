package ecofin

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from paid versus total.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// DefaultSyncLookback bounds the first payment sync window.
const DefaultSyncLookback = 90 * 24 * time.Hour

// PaymentState is the reconciled payment view of an invoice.
type PaymentState struct {
	PaidAmount decimal.Decimal
	DueAmount  decimal.Decimal
	Status     PaymentStatus
}

// ApplyPayment sets the paid amount reported by the invoicing system.
// The amount replaces the previous one, so applying the same event twice is a no-op.
func ApplyPayment(total, paidAmount decimal.Decimal) PaymentState {
	return PaymentState{
		PaidAmount: paidAmount,
		DueAmount:  total.Sub(paidAmount),
		Status:     StatusFor(total, paidAmount),
	}
}

// StatusFor classifies paid against total. Nothing due counts as paid, so a
// zero-total invoice is PAID from the start.
func StatusFor(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// SyncWindowStart returns the lower bound of the next payment sync: the finish time of
// the last successful run, or now minus lookback when there is none.
func SyncWindowStart(lastSuccess *time.Time, now time.Time, lookback time.Duration) time.Time {
	if lastSuccess != nil && !lastSuccess.IsZero() {
		return *lastSuccess
	}
	if lookback <= 0 {
		lookback = DefaultSyncLookback
	}
	return now.Add(-lookback)
}
