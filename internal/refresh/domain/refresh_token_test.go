package domain

import (
	"testing"
	"time"
)

func TestRefreshToken_UsableAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tok := &RefreshToken{ExpiresAt: now.Add(time.Second)}
	if !tok.UsableAt(now) {
		t.Error("fresh token should be usable")
	}
	if tok.UsableAt(now.Add(time.Second)) {
		t.Error("token should be unusable at its expiry instant")
	}
	tok.Revoked = true
	if tok.UsableAt(now) {
		t.Error("revoked token should be unusable")
	}
	var nilTok *RefreshToken
	if nilTok.UsableAt(now) {
		t.Error("nil token should be unusable")
	}
}

func TestRefreshToken_Rotated(t *testing.T) {
	tok := &RefreshToken{Revoked: true}
	if tok.Rotated() {
		t.Error("revoked without successor is not a rotation")
	}
	tok.ReplacedBy = "abc"
	if !tok.Rotated() {
		t.Error("revoked with successor is a rotation")
	}
}
