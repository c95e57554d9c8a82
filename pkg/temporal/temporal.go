// Package temporal evaluates receipt validity against a clock: has the
// receipt expired, and was it issued in the future? Both checks honor a
// configurable clock-skew tolerance.
package temporal

import (
	"fmt"
	"time"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// DefaultClockSkewTolerance is the allowed disagreement between the
// issuer's clock and the verifier's clock.
const DefaultClockSkewTolerance = 300 * time.Second

// Clock supplies the current time. Production code uses SystemClock;
// tests inject fixed clocks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

// ExpiredReceiptError reports that the receipt's expiration time, plus
// skew tolerance, has passed.
type ExpiredReceiptError struct {
	ReceiptID string
	ExpiredAt time.Time
	Now       time.Time
}

func (e *ExpiredReceiptError) Error() string {
	return fmt.Sprintf("receipt %s expired at %s (checked at %s)",
		e.ReceiptID, e.ExpiredAt.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// FutureTimestampError reports a receipt issued further in the future
// than skew tolerance allows. This guards against clock-forged
// receipts.
type FutureTimestampError struct {
	ReceiptID string
	Timestamp time.Time
	Now       time.Time
}

func (e *FutureTimestampError) Error() string {
	return fmt.Sprintf("receipt %s issued at %s, in the future of %s",
		e.ReceiptID, e.Timestamp.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// Check evaluates the receipt's temporal validity at now. A negative
// skew is treated as zero (strict).
func Check(r *receipt.Receipt, now time.Time, skew time.Duration) error {
	if skew < 0 {
		skew = 0
	}

	if r.Timestamp.After(now.Add(skew)) {
		return &FutureTimestampError{
			ReceiptID: r.ReceiptID,
			Timestamp: r.Timestamp,
			Now:       now,
		}
	}

	if now.After(r.ExpirationTime.Add(skew)) {
		return &ExpiredReceiptError{
			ReceiptID: r.ReceiptID,
			ExpiredAt: r.ExpirationTime,
			Now:       now,
		}
	}
	return nil
}
