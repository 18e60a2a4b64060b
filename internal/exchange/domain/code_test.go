package domain

import (
	"testing"
	"time"
)

func TestCode_RedeemableAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := &Code{ExpiresAt: now.Add(5 * time.Minute)}
	if !c.RedeemableAt(now) {
		t.Error("fresh code should be redeemable")
	}
	if c.RedeemableAt(now.Add(5 * time.Minute)) {
		t.Error("code should not be redeemable at expiry")
	}
	used := now
	c.UsedAt = &used
	if c.RedeemableAt(now) {
		t.Error("used code should not be redeemable")
	}
}
