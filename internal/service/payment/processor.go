package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/events"
)

const (
	tracerName      = "github.com/vladislavdragonenkov/shop/internal/service/payment"
	maxSaveAttempts = 3
)

// Outcome: результат обработки callback.
type Outcome string

const (
	// OutcomeCompleted: оплата подтверждена.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed: шлюз сообщил об отказе.
	OutcomeFailed Outcome = "failed"
	// OutcomeDuplicate: платёж уже в конечном статусе, callback ничего не изменил.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRefundRequired: оплата прошла, но заказ уже отменён или вручён; нужен возврат.
	OutcomeRefundRequired Outcome = "refund_required"
)

// Processor обрабатывает callback шлюза. Повторная доставка того же callback ничего не меняет.
type Processor struct {
	signer   *Signer
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	events   *events.Emitter
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	tracer   trace.Tracer
	now      func() time.Time
}

// ProcessorOption настраивает Processor.
type ProcessorOption func(*Processor)

// WithEvents включает запись событий оплаты.
func WithEvents(emitter *events.Emitter) ProcessorOption {
	return func(p *Processor) { p.events = emitter }
}

// WithMetrics включает метрики callback.
func WithMetrics(m *metrics.CheckoutMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor создаёт обработчик callback.
func NewProcessor(signer *Signer, orders domain.OrderRepository, payments domain.PaymentRepository, opts ...ProcessorOption) *Processor {
	p := &Processor{
		signer:   signer,
		orders:   orders,
		payments: payments,
		logger:   log.New().WithField("component", "payment-callback"),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle проверяет подпись, находит платёж по TxnRef и применяет результат оплаты
// к платежу и заказу одной записью.
func (p *Processor) Handle(ctx context.Context, params map[string]string) (Outcome, error) {
	txnRef := params[ParamTxnRef]
	ctx, span := p.tracer.Start(ctx, "payment.Callback", trace.WithAttributes(
		attribute.String("txn_ref", txnRef),
		attribute.String("response_code", params[ParamResponseCode]),
	))
	defer span.End()

	outcome, err := p.handle(ctx, params)
	label := string(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		label = failureLabel(err)
	}
	if p.metrics != nil {
		p.metrics.RecordPaymentCallback(label)
	}
	return outcome, err
}

func (p *Processor) handle(ctx context.Context, params map[string]string) (Outcome, error) {
	txnRef := params[ParamTxnRef]
	logger := p.logger.WithField("txn_ref", txnRef)

	if !p.signer.Verify(params) {
		logger.WithField("security", true).Warn("payment callback rejected: invalid signature")
		return "", domain.ErrInvalidSignature
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		payment, err := p.payments.GetByTxnRef(txnRef)
		if err != nil {
			if errors.Is(err, domain.ErrTransactionNotFound) {
				logger.WithField("security", true).Warn("payment callback rejected: unknown transaction")
			}
			return "", err
		}
		if err := checkAmount(params, payment); err != nil {
			logger.WithFields(log.Fields{
				"security": true,
				"expected": payment.AmountMinor,
				"got":      params[ParamAmount],
			}).Warn("payment callback rejected: amount mismatch")
			return "", err
		}
		if payment.Status.Final() {
			logger.WithField("status", payment.Status).Info("payment callback replay ignored")
			return OutcomeDuplicate, nil
		}

		order, err := p.orders.Get(payment.OrderID)
		if err != nil {
			return "", err
		}

		from := order.Status
		outcome := p.apply(params, &payment, &order)
		err = p.payments.SaveWithOrder(payment, order)
		if domain.IsVersionConflict(err) {
			logger.WithField("attempt", attempt+1).Warn("version conflict on payment callback, retrying")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save payment: %w", err)
		}
		order.Version++

		p.afterCallback(context.WithoutCancel(ctx), logger, order, from, outcome)
		return outcome, nil
	}
	return "", domain.ErrOrderVersionConflict
}

// apply переносит результат оплаты в платёж и заказ. Успех подтверждает только PENDING-заказ;
// отказ не меняет статус заказа, покупатель может оплатить повторно.
// Заказ в терминальном статусе не меняется: обновляется только платёж и его аудит.
func (p *Processor) apply(params map[string]string, payment *domain.PaymentDetail, order *domain.Order) Outcome {
	now := p.now()
	raw, _ := json.Marshal(params)

	payment.ResponseCode = params[ParamResponseCode]
	payment.GatewayTxnNo = params[ParamTransactionNo]
	payment.BankCode = params[ParamBankCode]
	payment.SecureHash = params[ParamSecureHash]
	payment.RawCallback = raw
	payment.UpdatedAt = now

	if order.Status.Terminal() {
		if succeeded(params) {
			payment.Status = domain.PaymentStatusCompleted
			return OutcomeRefundRequired
		}
		payment.Status = domain.PaymentStatusFailed
		return OutcomeFailed
	}

	order.UpdatedAt = now
	if succeeded(params) {
		payment.Status = domain.PaymentStatusCompleted
		order.PaymentStatus = domain.PaymentStatusCompleted
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
		}
		return OutcomeCompleted
	}
	payment.Status = domain.PaymentStatusFailed
	order.PaymentStatus = domain.PaymentStatusFailed
	return OutcomeFailed
}

func (p *Processor) afterCallback(ctx context.Context, logger *log.Entry, order domain.Order, from domain.OrderStatus, outcome Outcome) {
	logger = logger.WithField("order_id", order.ID)
	switch outcome {
	case OutcomeCompleted:
		p.events.Emit(ctx, order, domain.EventPaymentCompleted, map[string]any{"reason": "payment completed"})
		logger.Info("payment completed")
	case OutcomeFailed:
		p.events.Emit(ctx, order, domain.EventPaymentFailed, map[string]any{"reason": "payment failed"})
		logger.Warn("payment failed")
	case OutcomeRefundRequired:
		p.events.Emit(ctx, order, domain.EventRefundRequired, map[string]any{
			"reason": "payment received for " + string(order.Status) + " order",
		})
		logger.WithFields(log.Fields{
			"security":        true,
			"refund_required": true,
			"status":          order.Status,
		}).Error("payment received for finalized order, refund required")
	}
	if order.Status != from {
		if p.metrics != nil {
			p.metrics.RecordStatusTransition(string(from), string(order.Status))
		}
		p.events.StatusChanged(ctx, order, from, "payment completed")
	}
}

func succeeded(params map[string]string) bool {
	if params[ParamResponseCode] != ResponseSuccess {
		return false
	}
	status, ok := params[ParamTransactionStatus]
	return !ok || status == ResponseSuccess
}

func checkAmount(params map[string]string, payment domain.PaymentDetail) error {
	raw, ok := params[ParamAmount]
	if !ok {
		return nil
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount != payment.AmountMinor*100 {
		return domain.ErrAmountMismatch
	}
	return nil
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrTransactionNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	default:
		return "error"
	}
}
