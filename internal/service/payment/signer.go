// Package payment строит подписанные ссылки на оплату и обрабатывает callback платёжного шлюза.
package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Параметры протокола шлюза.
const (
	ParamVersion           = "vnp_Version"
	ParamCommand           = "vnp_Command"
	ParamTmnCode           = "vnp_TmnCode"
	ParamAmount            = "vnp_Amount"
	ParamCurrCode          = "vnp_CurrCode"
	ParamTxnRef            = "vnp_TxnRef"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamOrderType         = "vnp_OrderType"
	ParamLocale            = "vnp_Locale"
	ParamReturnURL         = "vnp_ReturnUrl"
	ParamIPAddr            = "vnp_IpAddr"
	ParamCreateDate        = "vnp_CreateDate"
	ParamExpireDate        = "vnp_ExpireDate"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionNo     = "vnp_TransactionNo"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamBankCode          = "vnp_BankCode"
	ParamPayDate           = "vnp_PayDate"
	ParamSecureHash        = "vnp_SecureHash"
	ParamSecureHashType    = "vnp_SecureHashType"
)

// ResponseSuccess: код успешной оплаты.
const ResponseSuccess = "00"

// Signer подписывает параметры HMAC-SHA512 с секретом мерчанта.
type Signer struct {
	secret []byte
}

// NewSigner создаёт подписчика.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Canonical строит строку для подписи: без полей подписи и пустых значений,
// ключи по возрастанию, ключи и значения экранированы url.QueryEscape.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == ParamSecureHash || k == ParamSecureHashType || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Sign возвращает подпись в нижнем регистре hex.
func (s *Signer) Sign(params map[string]string) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(Canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify пересчитывает подпись и сравнивает её с ParamSecureHash за постоянное время.
// Без секрета подпись может посчитать кто угодно, поэтому Verify всегда отказывает.
func (s *Signer) Verify(params map[string]string) bool {
	got := strings.ToLower(params[ParamSecureHash])
	if got == "" || len(s.secret) == 0 {
		return false
	}
	want := s.Sign(params)
	return hmac.Equal([]byte(got), []byte(want))
}
