package payment

import (
	"fmt"
	"strconv"
	"time"
)

// Simulator подписывает callback так, как это делает шлюз. Используется в тестах,
// нагрузочном клиенте и локальной разработке без песочницы шлюза.
type Simulator struct {
	signer *Signer
	now    func() time.Time

	// Calls считает выданные callback.
	Calls int
}

// NewSimulator создаёт симулятор с секретом мерчанта.
func NewSimulator(secret string) *Simulator {
	return &Simulator{signer: NewSigner(secret), now: time.Now}
}

// Callback возвращает подписанные параметры IPN для транзакции.
func (s *Simulator) Callback(txnRef string, amountMinor int64, responseCode string) map[string]string {
	s.Calls++
	status := responseCode
	if status != ResponseSuccess {
		status = "02"
	}
	params := map[string]string{
		ParamTmnCode:           "SIMULATOR",
		ParamTxnRef:            txnRef,
		ParamAmount:            strconv.FormatInt(amountMinor*100, 10),
		ParamResponseCode:      responseCode,
		ParamTransactionStatus: status,
		ParamTransactionNo:     fmt.Sprintf("%d", 14000000+s.Calls),
		ParamBankCode:          "NCB",
		ParamPayDate:           s.now().In(gatewayZone).Format(gatewayTimeFormat),
		ParamOrderInfo:         "Payment for " + txnRef,
	}
	params[ParamSecureHash] = s.signer.Sign(params)
	return params
}

// CallbackForURL строит callback по ссылке, выданной Gateway.CreatePaymentURL.
func (s *Simulator) CallbackForURL(paymentURL, responseCode string) (map[string]string, error) {
	query, err := ParamsFromURL(paymentURL)
	if err != nil {
		return nil, err
	}
	amount, err := strconv.ParseInt(query[ParamAmount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return s.Callback(query[ParamTxnRef], amount/100, responseCode), nil
}
