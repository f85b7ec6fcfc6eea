package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// IPNPath: адрес, на который шлюз отправляет уведомление об оплате.
const IPNPath = "/payments/vnpay/ipn"

// ipnResponse: ответ шлюзу в его формате.
type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// Handler принимает IPN шлюза по HTTP.
type Handler struct {
	processor *Processor
	logger    *log.Entry
}

// NewHandler создаёт HTTP-обработчик.
func NewHandler(processor *Processor, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "payment-ipn")
	}
	return &Handler{processor: processor, logger: logger}
}

// Routes регистрирует маршруты обработчика.
func (h *Handler) Routes(r chi.Router) {
	r.Get(IPNPath, h.IPN)
}

// IPN обрабатывает уведомление. Шлюз ждёт HTTP 200 и код результата в теле.
func (h *Handler) IPN(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.processor.Handle(r.Context(), Flatten(r.URL.Query()))
	resp := ipnResult(outcome, err)
	if resp.RspCode == "99" {
		h.logger.WithError(err).WithField("txn_ref", r.URL.Query().Get(ParamTxnRef)).Error("payment ipn failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		h.logger.WithError(encErr).Warn("failed to write ipn response")
	}
}

func ipnResult(outcome Outcome, err error) ipnResponse {
	switch {
	case err == nil && outcome == OutcomeDuplicate:
		return ipnResponse{RspCode: "02", Message: "Order already confirmed"}
	case err == nil:
		return ipnResponse{RspCode: "00", Message: "Confirm Success"}
	case errors.Is(err, domain.ErrInvalidSignature):
		return ipnResponse{RspCode: "97", Message: "Invalid signature"}
	case errors.Is(err, domain.ErrTransactionNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return ipnResponse{RspCode: "01", Message: "Order not found"}
	case errors.Is(err, domain.ErrAmountMismatch):
		return ipnResponse{RspCode: "04", Message: "Invalid amount"}
	default:
		return ipnResponse{RspCode: "99", Message: "Unknown error"}
	}
}
