package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// ErrorDomain помечает ErrorInfo, выпущенные сервисами магазина.
const ErrorDomain = "shop"

type errorMapping struct {
	target error
	reason string
	code   codes.Code
}

// Порядок важен: ErrOrderCreationFailed оборачивает причину и должен сопоставляться раньше неё.
var errorMappings = []errorMapping{
	{domain.ErrOrderCreationFailed, "ORDER_CREATION_FAILED", codes.Unavailable},
	{domain.ErrServiceUnavailable, "SERVICE_UNAVAILABLE", codes.Unavailable},
	{domain.ErrInsufficientStock, "INSUFFICIENT_STOCK", codes.FailedPrecondition},
	{domain.ErrInvalidAddress, "INVALID_ADDRESS", codes.InvalidArgument},
	{domain.ErrEmptySelection, "EMPTY_SELECTION", codes.InvalidArgument},
	{domain.ErrInvalidQuantity, "INVALID_QUANTITY", codes.InvalidArgument},
	{domain.ErrProductInactive, "PRODUCT_INACTIVE", codes.FailedPrecondition},
	{domain.ErrSizeNotFound, "SIZE_NOT_FOUND", codes.NotFound},
	{domain.ErrCartItemNotFound, "CART_ITEM_NOT_FOUND", codes.NotFound},
	{domain.ErrForbiddenItem, "FORBIDDEN_ITEM", codes.PermissionDenied},
	{domain.ErrUserNotEligible, "USER_NOT_ELIGIBLE", codes.PermissionDenied},
	{domain.ErrInvalidSignature, "INVALID_SIGNATURE", codes.PermissionDenied},
	{domain.ErrTransactionNotFound, "TRANSACTION_NOT_FOUND", codes.NotFound},
	{domain.ErrAmountMismatch, "AMOUNT_MISMATCH", codes.InvalidArgument},
	{domain.ErrOrderAlreadyPaid, "ORDER_ALREADY_PAID", codes.FailedPrecondition},
	{domain.ErrOrderAlreadyFinalized, "ORDER_ALREADY_FINALIZED", codes.FailedPrecondition},
	{domain.ErrCannotCancelShippedOrder, "CANNOT_CANCEL_SHIPPED", codes.FailedPrecondition},
	{domain.ErrInvalidTransition, "INVALID_TRANSITION", codes.FailedPrecondition},
	{domain.ErrOrderVersionConflict, "ORDER_VERSION_CONFLICT", codes.Aborted},
	{domain.ErrOrderNotFound, "ORDER_NOT_FOUND", codes.NotFound},
	{domain.ErrCartNotFound, "CART_NOT_FOUND", codes.NotFound},
	{domain.ErrStockNotFound, "STOCK_NOT_FOUND", codes.NotFound},
	{domain.ErrProductNotFound, "PRODUCT_NOT_FOUND", codes.NotFound},
	{domain.ErrPaymentNotFound, "PAYMENT_NOT_FOUND", codes.NotFound},
	{domain.ErrUserNotFound, "USER_NOT_FOUND", codes.NotFound},
}

// StatusCode возвращает gRPC-код для доменной ошибки и признак того, что ошибка распознана.
func StatusCode(err error) (codes.Code, bool) {
	if m, ok := lookupMapping(err); ok {
		return m.code, true
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, true
	}
	return codes.Internal, false
}

// ToStatus переводит доменную ошибку в status-ошибку с ErrorInfo.
// Нераспознанные ошибки становятся Internal с сообщением fallbackMsg.
func ToStatus(err error, fallbackMsg string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	m, ok := lookupMapping(err)
	if !ok {
		code, known := StatusCode(err)
		if known {
			return status.Error(code, err.Error())
		}
		return status.Error(codes.Internal, fallbackMsg)
	}

	info := &errdetails.ErrorInfo{Reason: m.reason, Domain: ErrorDomain}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		info.Metadata = map[string]string{
			"product_id": strconv.FormatInt(stockErr.ProductID, 10),
			"size":       stockErr.Size,
			"requested":  strconv.FormatInt(int64(stockErr.Requested), 10),
			"available":  strconv.FormatInt(int64(stockErr.Available), 10),
		}
	}

	st, detailErr := status.New(m.code, err.Error()).WithDetails(info)
	if detailErr != nil {
		return status.Error(m.code, err.Error())
	}
	return st.Err()
}

// FromStatus восстанавливает доменную ошибку из ответа сервиса.
// Ошибки транспорта возвращаются как есть, их классифицирует resilience.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, detail := range st.Details() {
		info, isInfo := detail.(*errdetails.ErrorInfo)
		if !isInfo || info.GetDomain() != ErrorDomain {
			continue
		}
		return errorFromInfo(info, st.Message())
	}

	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	}
	return err
}

func errorFromInfo(info *errdetails.ErrorInfo, message string) error {
	if info.GetReason() == "INSUFFICIENT_STOCK" && len(info.GetMetadata()) > 0 {
		md := info.GetMetadata()
		productID, _ := strconv.ParseInt(md["product_id"], 10, 64)
		requested, _ := strconv.ParseInt(md["requested"], 10, 32)
		available, _ := strconv.ParseInt(md["available"], 10, 32)
		return &domain.InsufficientStockError{
			ProductID: productID,
			Size:      md["size"],
			Requested: int32(requested),
			Available: int32(available),
		}
	}
	for _, m := range errorMappings {
		if m.reason != info.GetReason() {
			continue
		}
		if message == "" || message == m.target.Error() {
			return m.target
		}
		return fmt.Errorf("%w: %s", m.target, message)
	}
	return status.Error(codes.Internal, message)
}

func lookupMapping(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}
