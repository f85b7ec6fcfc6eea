package domain

import (
	"errors"
	"fmt"
)

// Ошибки валидации запроса на оформление и изменения корзины.
var (
	// ErrInvalidAddress: адрес доставки не принадлежит пользователю или не существует.
	ErrInvalidAddress = errors.New("invalid delivery address")
	// ErrEmptySelection: для оформления не выбрано ни одной позиции корзины.
	ErrEmptySelection = errors.New("no cart items selected")
	// ErrForbiddenItem: выбранная позиция принадлежит чужой корзине.
	ErrForbiddenItem = errors.New("cart item does not belong to user")
	// ErrUserNotEligible: пользователь неизвестен, заблокирован или неактивен.
	ErrUserNotEligible = errors.New("user is not eligible to place orders")
	// ErrInvalidQuantity: количество должно быть больше нуля.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrProductInactive: товар снят с продажи или каталог недоступен.
	ErrProductInactive = errors.New("product is not available for sale")
	// ErrSizeNotFound: для товара нет складской записи указанного размера.
	ErrSizeNotFound = errors.New("product size not found")
	// ErrCartItemNotFound: позиция корзины не найдена.
	ErrCartItemNotFound = errors.New("cart item not found")
)

// Ошибки остатков.
var (
	// ErrInsufficientStock: на складе недостаточно единиц товара.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Ошибки зависимостей.
var (
	// ErrServiceUnavailable: удалённая зависимость недоступна, операция записи не выполнена.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	// ErrOrderCreationFailed: заказ был создан, но списание остатков не прошло; заказ удалён.
	ErrOrderCreationFailed = errors.New("order creation failed")
)

// Ошибки целостности платёжного callback.
var (
	// ErrInvalidSignature: подпись callback не совпала с пересчитанной.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrTransactionNotFound: неизвестный идентификатор транзакции.
	ErrTransactionNotFound = errors.New("payment transaction not found")
	// ErrAmountMismatch: сумма в callback не совпадает с суммой платежа.
	ErrAmountMismatch = errors.New("payment amount mismatch")
	// ErrOrderAlreadyPaid: заказ уже оплачен, новая платёжная ссылка не нужна.
	ErrOrderAlreadyPaid = errors.New("order already paid")
)

// Ошибки переходов статуса заказа.
var (
	// ErrOrderAlreadyFinalized: заказ в терминальном статусе (DELIVERED/CANCELLED).
	ErrOrderAlreadyFinalized = errors.New("order already finalized")
	// ErrCannotCancelShippedOrder: отгруженный заказ нельзя отменить.
	ErrCannotCancelShippedOrder = errors.New("cannot cancel shipped order")
	// ErrInvalidTransition: переход не разрешён таблицей статусов.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Ошибки хранилищ.
var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrCartNotFound: у пользователя ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrStockNotFound: нет складской записи для пары (товар, размер).
	ErrStockNotFound = errors.New("stock record not found")
	// ErrProductNotFound: товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrPaymentNotFound: у заказа нет платёжной записи.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrUserNotFound: пользователь неизвестен сервису аккаунтов.
	ErrUserNotFound = errors.New("user not found")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Ошибки идемпотентности запросов на оформление.
var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError называет товар, которого не хватило.
// errors.Is(err, ErrInsufficientStock) для него истинно.
type InsufficientStockError struct {
	ProductID int64
	Size      string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d size %q: requested %d, available %d",
		e.ProductID, e.Size, e.Requested, e.Available)
}

// Is позволяет сопоставлять ошибку с ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsBusinessError сообщает, что ошибка: ответ предметной области, а не сбой инфраструктуры.
// Такие ошибки не повторяются и не считаются отказом зависимости.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var businessErrors = []error{
	ErrInvalidAddress,
	ErrEmptySelection,
	ErrForbiddenItem,
	ErrUserNotEligible,
	ErrInvalidQuantity,
	ErrProductInactive,
	ErrSizeNotFound,
	ErrCartItemNotFound,
	ErrInsufficientStock,
	ErrInvalidSignature,
	ErrTransactionNotFound,
	ErrAmountMismatch,
	ErrOrderAlreadyPaid,
	ErrOrderAlreadyFinalized,
	ErrCannotCancelShippedOrder,
	ErrInvalidTransition,
	ErrOrderNotFound,
	ErrCartNotFound,
	ErrStockNotFound,
	ErrProductNotFound,
	ErrPaymentNotFound,
	ErrUserNotFound,
}
