package payment

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/events"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type paymentFixture struct {
	repo      *memory.OrderRepository
	timeline  *memory.TimelineRepository
	metrics   *metrics.CheckoutMetrics
	gateway   *Gateway
	processor *Processor
	sim       *Simulator
	order     domain.Order
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		repo:     memory.NewOrderRepository(),
		timeline: memory.NewTimelineRepository(),
		metrics:  metrics.NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry()),
		sim:      NewSimulator(testSecret),
	}
	f.order = seedOrder(t, f.repo, domain.OrderStatusPending)
	f.gateway = newTestGateway(f.repo)
	f.processor = NewProcessor(f.gateway.Signer(), f.repo, f.repo,
		WithEvents(events.NewEmitter(nil, f.timeline)),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *paymentFixture) paymentURL(t *testing.T) PaymentURL {
	t.Helper()
	link, err := f.gateway.CreatePaymentURL(context.Background(), f.order.ID, "127.0.0.1")
	require.NoError(t, err)
	return link
}

func (f *paymentFixture) eventTypes(t *testing.T) []string {
	t.Helper()
	list, err := f.timeline.List(f.order.ID)
	require.NoError(t, err)
	types := make([]string, 0, len(list))
	for _, ev := range list {
		types = append(types, ev.Type)
	}
	return types
}

func TestProcessorConfirmsPaidOrder(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)

	params, err := f.sim.CallbackForURL(link.URL, ResponseSuccess)
	require.NoError(t, err)

	outcome, err := f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	order, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, domain.PaymentStatusCompleted, order.PaymentStatus)

	payment, err := f.repo.GetByTxnRef(link.TxnRef)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	require.Equal(t, ResponseSuccess, payment.ResponseCode)
	require.NotEmpty(t, payment.GatewayTxnNo)
	require.Contains(t, string(payment.RawCallback), link.TxnRef)

	require.Equal(t, []string{domain.EventPaymentCompleted, domain.EventOrderStatusChanged}, f.eventTypes(t))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentCallbacksFor("completed")))
}

func TestProcessorReplayIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)
	params, err := f.sim.CallbackForURL(link.URL, ResponseSuccess)
	require.NoError(t, err)

	_, err = f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	before, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)

	outcome, err := f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	after, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
	require.Len(t, f.eventTypes(t), 2)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentCallbacksFor("duplicate")))
}

func TestProcessorRejectsForgedSuccess(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)

	params, err := f.sim.CallbackForURL(link.URL, "24")
	require.NoError(t, err)
	params[ParamResponseCode] = ResponseSuccess
	params[ParamTransactionStatus] = ResponseSuccess

	_, err = f.processor.Handle(context.Background(), params)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	order, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)

	payment, err := f.repo.GetByTxnRef(link.TxnRef)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, payment.Status)
	require.Empty(t, f.eventTypes(t))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentCallbacksFor("invalid_signature")))
}

func TestProcessorRejectsAmountMismatch(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)

	params := f.sim.Callback(link.TxnRef, f.order.TotalPriceMinor-1, ResponseSuccess)
	_, err := f.processor.Handle(context.Background(), params)
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	payment, err := f.repo.GetByTxnRef(link.TxnRef)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, payment.Status)
}

func TestProcessorRejectsUnknownTxn(t *testing.T) {
	f := newPaymentFixture(t)
	f.paymentURL(t)

	params := f.sim.Callback("unknown-ref", f.order.TotalPriceMinor, ResponseSuccess)
	_, err := f.processor.Handle(context.Background(), params)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentCallbacksFor("not_found")))
}

func TestProcessorFailureAllowsRetry(t *testing.T) {
	f := newPaymentFixture(t)
	first := f.paymentURL(t)

	params, err := f.sim.CallbackForURL(first.URL, "24")
	require.NoError(t, err)
	outcome, err := f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)

	order, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, domain.PaymentStatusFailed, order.PaymentStatus)

	second := f.paymentURL(t)
	require.NotEqual(t, first.TxnRef, second.TxnRef)

	params, err = f.sim.CallbackForURL(second.URL, ResponseSuccess)
	require.NoError(t, err)
	outcome, err = f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	order, err = f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, domain.PaymentStatusCompleted, order.PaymentStatus)

	_, err = f.gateway.CreatePaymentURL(context.Background(), f.order.ID, "")
	require.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
}

func TestProcessorLeavesFinalizedOrderUntouched(t *testing.T) {
	f := newPaymentFixture(t)
	link := f.paymentURL(t)

	cancelled, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	cancelled.Status = domain.OrderStatusCancelled
	require.NoError(t, f.repo.Save(cancelled))
	cancelled, err = f.repo.Get(f.order.ID)
	require.NoError(t, err)

	params, err := f.sim.CallbackForURL(link.URL, ResponseSuccess)
	require.NoError(t, err)
	outcome, err := f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeRefundRequired, outcome)

	order, err := f.repo.Get(f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, order.Status)
	require.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	require.Equal(t, cancelled.UpdatedAt, order.UpdatedAt)

	payment, err := f.repo.GetByTxnRef(link.TxnRef)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	require.Contains(t, string(payment.RawCallback), link.TxnRef)

	require.Equal(t, []string{domain.EventRefundRequired}, f.eventTypes(t))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentCallbacksFor("refund_required")))

	outcome, err = f.processor.Handle(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
}
