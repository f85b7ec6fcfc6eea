package account

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestDirectory(t *testing.T) {
	dir := NewDirectory()
	dir.AddUser(domain.User{ID: 1, Email: "a@example.com", Active: true})
	dir.AddAddress(1, 10)
	dir.AddAddress(2, 20)
	ctx := context.Background()

	res, err := dir.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if res.Degraded || !res.Value.CanOrder() {
		t.Fatalf("unexpected user result: %+v", res)
	}
	if _, err := dir.GetUser(ctx, 2); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	ok, err := dir.ValidateAddress(ctx, 1, 10)
	if err != nil || !ok {
		t.Fatalf("expected own address to be valid: ok=%v err=%v", ok, err)
	}
	ok, err = dir.ValidateAddress(ctx, 1, 20)
	if err != nil || ok {
		t.Fatalf("expected foreign address to be invalid: ok=%v err=%v", ok, err)
	}
	ok, _ = dir.ValidateAddress(ctx, 1, 99)
	if ok {
		t.Fatal("expected unknown address to be invalid")
	}
}
