package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestCanonicalSortsAndSkipsHashFields(t *testing.T) {
	params := map[string]string{
		"vnp_TxnRef":        "abc",
		"vnp_Amount":        "100",
		"vnp_OrderInfo":     "Payment for order 1",
		"vnp_BankCode":      "",
		ParamSecureHash:     "deadbeef",
		ParamSecureHashType: "HmacSHA512",
	}

	got := Canonical(params)
	want := "vnp_Amount=100&vnp_OrderInfo=Payment+for+order+1&vnp_TxnRef=abc"
	if got != want {
		t.Fatalf("canonical mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestSignerVerifiesOwnSignature(t *testing.T) {
	signer := NewSigner("secret")
	params := map[string]string{ParamTxnRef: "abc", ParamAmount: "1000000", ParamResponseCode: "00"}
	params[ParamSecureHash] = signer.Sign(params)

	if len(params[ParamSecureHash]) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(params[ParamSecureHash]))
	}
	if !signer.Verify(params) {
		t.Fatal("expected signature to verify")
	}

	params[ParamSecureHash] = strings.ToUpper(params[ParamSecureHash])
	if !signer.Verify(params) {
		t.Fatal("expected upper-case signature to verify")
	}
}

func TestSignerRejectsTampering(t *testing.T) {
	signer := NewSigner("secret")
	base := map[string]string{ParamTxnRef: "abc", ParamAmount: "1000000", ParamResponseCode: "24"}
	base[ParamSecureHash] = signer.Sign(base)

	cases := map[string]func(p map[string]string){
		"response code": func(p map[string]string) { p[ParamResponseCode] = "00" },
		"amount":        func(p map[string]string) { p[ParamAmount] = "1" },
		"added field":   func(p map[string]string) { p[ParamBankCode] = "NCB" },
		"missing hash":  func(p map[string]string) { delete(p, ParamSecureHash) },
		"wrong secret":  func(p map[string]string) { p[ParamSecureHash] = NewSigner("other").Sign(p) },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			params := make(map[string]string, len(base))
			for k, v := range base {
				params[k] = v
			}
			tamper(params)
			if signer.Verify(params) {
				t.Fatal("expected tampered params to be rejected")
			}
		})
	}
}

func TestSignerWithoutSecretRejectsEverything(t *testing.T) {
	signer := NewSigner("")
	params := map[string]string{ParamTxnRef: "abc", ParamAmount: "1000000", ParamResponseCode: ResponseSuccess}
	params[ParamSecureHash] = signer.Sign(params)

	if signer.Verify(params) {
		t.Fatal("signature made with an empty secret must not verify")
	}
}

func TestSignerRejectsEverySingleCharacterChange(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := seedOrder(t, repo, domain.OrderStatusPending)
	gw := newTestGateway(repo)
	link, err := gw.CreatePaymentURL(context.Background(), order.ID, "10.0.0.1")
	if err != nil {
		t.Fatalf("create payment url: %v", err)
	}
	params, err := NewSimulator(testSecret).CallbackForURL(link.URL, ResponseSuccess)
	if err != nil {
		t.Fatalf("build callback: %v", err)
	}
	signer := gw.Signer()
	if !signer.Verify(params) {
		t.Fatal("untouched callback must verify")
	}

	checked := 0
	for key, value := range params {
		if key == ParamSecureHash || key == ParamSecureHashType {
			continue
		}
		for i := 0; i < len(value); i++ {
			replacement := byte('x')
			if value[i] == replacement {
				replacement = 'y'
			}
			tampered := make(map[string]string, len(params))
			for k, v := range params {
				tampered[k] = v
			}
			tampered[key] = value[:i] + string(replacement) + value[i+1:]
			if signer.Verify(tampered) {
				t.Fatalf("change of %s at position %d was accepted", key, i)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("callback has no fields to tamper with")
	}
}
