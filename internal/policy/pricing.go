// Package policy holds the pure pricing, cancellation and overstay rules of
// the booking lifecycle. Every function is total and side-effect free: same
// inputs, same outputs, so retries can never double-charge through here.
package policy

import (
	"math"
	"time"
)

// PricingConfig parameterizes every monetary computation. Rates are percent
// values (10 means +10%), OverstayRateCents is cents per hour.
type PricingConfig struct {
	DriverMarkupPercent float64
	ServiceFeePercent   float64
	OverstayRateCents   int64
}

// Quote is the driver-facing price for some number of hours.
type Quote struct {
	SubtotalCents   int64
	ServiceFeeCents int64
	TotalCents      int64
}

// roundCents rounds a fractional cent amount half-up.
func roundCents(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// DriverHourlyRateCents applies the configured markup to the host's base rate.
func DriverHourlyRateCents(cfg PricingConfig, hostRateCents int64) int64 {
	return roundCents(float64(hostRateCents) * (1 + cfg.DriverMarkupPercent/100))
}

// BasePricing prices a stay of the given duration at the host's base rate:
// marked-up subtotal plus the platform service fee.
func BasePricing(cfg PricingConfig, hostRateCents int64, hours float64) Quote {
	subtotal := roundCents(float64(DriverHourlyRateCents(cfg, hostRateCents)) * hours)
	fee := roundCents(float64(subtotal) * cfg.ServiceFeePercent / 100)
	return Quote{
		SubtotalCents:   subtotal,
		ServiceFeeCents: fee,
		TotalCents:      subtotal + fee,
	}
}

// ExtensionCost prices the incremental hours of an extension. Same formula
// as BasePricing applied to the added duration only.
func ExtensionCost(cfg PricingConfig, hostRateCents int64, extensionHours float64) Quote {
	return BasePricing(cfg, hostRateCents, extensionHours)
}

// ModificationDelta is the signed difference between the price of the new
// duration and what was already charged for the base stay. Positive means
// charge, negative means refund.
func ModificationDelta(cfg PricingConfig, hostRateCents int64, newHours float64, alreadyChargedCents int64) int64 {
	return BasePricing(cfg, hostRateCents, newHours).TotalCents - alreadyChargedCents
}

// EVChargingFeeCents is the flat per-hour premium for EV charging, applied
// at booking creation only.
func EVChargingFeeCents(perHourCents int64, hours float64) int64 {
	return roundCents(float64(perHourCents) * hours)
}

// OverstayAccrualCents is the charge accrued since the overstay grace period
// ended, rounded up to the cent. It is derived from the clock on every call
// rather than kept as a running counter, so it is monotonically
// non-decreasing in now and zero at or before graceEnd.
func OverstayAccrualCents(cfg PricingConfig, graceEnd, now time.Time) int64 {
	if !now.After(graceEnd) {
		return 0
	}
	hours := now.Sub(graceEnd).Hours()
	return int64(math.Ceil(float64(cfg.OverstayRateCents) * hours))
}
