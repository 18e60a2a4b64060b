package security

import (
	"context"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4)
	password := []byte("secret123")
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" {
		t.Fatal("Hash returned empty")
	}
	if err := h.Verify(context.Background(), hash, password); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestHasher_VerifyWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash([]byte("secret123"))
	if err := h.Verify(context.Background(), hash, []byte("wrong")); err != ErrPasswordMismatch {
		t.Fatalf("Verify wrong password: want ErrPasswordMismatch, got %v", err)
	}
}

func TestHasher_VerifyEmptyOrMalformedHash(t *testing.T) {
	h := NewHasher(4)
	if err := h.Verify(context.Background(), "", []byte("x")); err != ErrPasswordMismatch {
		t.Errorf("Verify empty hash: want ErrPasswordMismatch, got %v", err)
	}
	if err := h.Verify(context.Background(), "not-bcrypt", []byte("x")); err != ErrPasswordMismatch {
		t.Errorf("Verify malformed hash: want ErrPasswordMismatch, got %v", err)
	}
}

func TestHasher_VerifyCanceledContext(t *testing.T) {
	h := NewHasher(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Verify(ctx, "", []byte("x")); err != context.Canceled {
		t.Errorf("Verify canceled: want context.Canceled, got %v", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	h := NewHasher(5)
	if h.Cost != 5 {
		t.Errorf("Cost want 5, got %d", h.Cost)
	}
	h0 := NewHasher(1)
	if h0.Cost < 4 {
		t.Errorf("low cost should be clamped to at least MinCost, got %d", h0.Cost)
	}
}
