package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const gatewayTimeFormat = "20060102150405"

// gatewayZone: часовой пояс шлюза (UTC+7).
var gatewayZone = time.FixedZone("ICT", 7*60*60)

// GatewayConfig содержит реквизиты мерчанта.
type GatewayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	// ExpireAfter: срок жизни ссылки.
	ExpireAfter time.Duration
	Locale      string
}

// DefaultGatewayConfig возвращает настройки песочницы шлюза.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PayURL:      "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:   "http://localhost:8080/payments/vnpay/return",
		ExpireAfter: 15 * time.Minute,
		Locale:      "vn",
	}
}

// PaymentURL: ссылка для перехода покупателя на страницу оплаты.
type PaymentURL struct {
	URL    string
	TxnRef string
}

// Gateway создаёт платёж заказа и подписанную ссылку на оплату.
type Gateway struct {
	cfg      GatewayConfig
	signer   *Signer
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	logger   *log.Entry
	now      func() time.Time
	txnRef   func() string
}

// NewGateway создаёт Gateway.
func NewGateway(cfg GatewayConfig, orders domain.OrderRepository, payments domain.PaymentRepository, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	defaults := DefaultGatewayConfig()
	if cfg.PayURL == "" {
		cfg.PayURL = defaults.PayURL
	}
	if cfg.ReturnURL == "" {
		cfg.ReturnURL = defaults.ReturnURL
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = defaults.ExpireAfter
	}
	if cfg.Locale == "" {
		cfg.Locale = defaults.Locale
	}
	return &Gateway{
		cfg:      cfg,
		signer:   NewSigner(cfg.HashSecret),
		orders:   orders,
		payments: payments,
		logger:   logger,
		now:      time.Now,
		txnRef:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Signer возвращает подписчика с секретом мерчанта.
func (g *Gateway) Signer() *Signer {
	return g.signer
}

// CreatePaymentURL создаёт или обновляет PENDING-платёж заказа с новым TxnRef
// и возвращает подписанную ссылку. Оплаченный или завершённый заказ отклоняется.
func (g *Gateway) CreatePaymentURL(ctx context.Context, orderID, clientIP string) (PaymentURL, error) {
	if err := ctx.Err(); err != nil {
		return PaymentURL{}, err
	}
	order, err := g.orders.Get(orderID)
	if err != nil {
		return PaymentURL{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusCompleted {
		return PaymentURL{}, domain.ErrOrderAlreadyPaid
	}
	if order.Status.Terminal() {
		return PaymentURL{}, domain.ErrOrderAlreadyFinalized
	}

	now := g.now()
	payment := domain.PaymentDetail{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		TxnRef:      g.txnRef(),
		AmountMinor: order.TotalPriceMinor,
		Status:      domain.PaymentStatusPending,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	// Оплаченный платёж не заменяется; после FAILED покупатель может оплатить заново.
	if err := g.payments.UpsertPending(payment); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyPaid) {
			return PaymentURL{}, err
		}
		return PaymentURL{}, fmt.Errorf("save pending payment: %w", err)
	}

	params := map[string]string{
		ParamVersion:    "2.1.0",
		ParamCommand:    "pay",
		ParamTmnCode:    g.cfg.TmnCode,
		ParamAmount:     strconv.FormatInt(payment.AmountMinor*100, 10),
		ParamCurrCode:   "VND",
		ParamTxnRef:     payment.TxnRef,
		ParamOrderInfo:  "Payment for order " + order.ID,
		ParamOrderType:  "other",
		ParamLocale:     g.cfg.Locale,
		ParamReturnURL:  g.cfg.ReturnURL,
		ParamIPAddr:     clientIP,
		ParamCreateDate: now.In(gatewayZone).Format(gatewayTimeFormat),
		ParamExpireDate: now.Add(g.cfg.ExpireAfter).In(gatewayZone).Format(gatewayTimeFormat),
	}
	query := Canonical(params)
	signed := query + "&" + ParamSecureHash + "=" + g.signer.Sign(params)

	g.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"txn_ref":  payment.TxnRef,
		"amount":   payment.AmountMinor,
	}).Info("payment url created")

	return PaymentURL{URL: g.cfg.PayURL + "?" + signed, TxnRef: payment.TxnRef}, nil
}

// ParamsFromURL разбирает query ссылки в плоский набор параметров.
func ParamsFromURL(raw string) (map[string]string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse payment url: %w", err)
	}
	return Flatten(u.Query()), nil
}

// Flatten берёт первое значение каждого параметра.
func Flatten(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
