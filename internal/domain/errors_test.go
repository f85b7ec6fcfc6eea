package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "idempotency already exists",
			err:  ErrIdempotencyKeyAlreadyExists,
			want: true,
		},
		{
			name: "idempotency hash mismatch",
			err:  ErrIdempotencyHashMismatch,
			want: true,
		},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{
			name: "non idempotency error",
			err:  ErrOrderVersionConflict,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsIdempotencyConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInsufficientStockError(t *testing.T) {
	err := fmt.Errorf("reduce: %w", &InsufficientStockError{ProductID: 42, Size: "M", Requested: 2, Available: 1})

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("expected error to match ErrInsufficientStock")
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != 42 {
		t.Fatalf("expected typed error naming product 42, got %v", err)
	}
	if !strings.Contains(err.Error(), "product 42") {
		t.Fatalf("message must name the product: %q", err.Error())
	}
}

func TestIsBusinessError(t *testing.T) {
	if !IsBusinessError(fmt.Errorf("wrap: %w", ErrInvalidAddress)) {
		t.Fatal("invalid address is a business answer")
	}
	if !IsBusinessError(&InsufficientStockError{ProductID: 1}) {
		t.Fatal("insufficient stock is a business answer")
	}
	if IsBusinessError(ErrServiceUnavailable) {
		t.Fatal("service unavailable is not a business answer")
	}
	if IsBusinessError(errors.New("connection refused")) {
		t.Fatal("transport error is not a business answer")
	}
	if IsBusinessError(nil) {
		t.Fatal("nil is not a business answer")
	}
}
