package domain

// Result: ответ удалённой зависимости, помеченный как настоящий или деградированный.
// Деградированное значение: безопасная заглушка, подставленная при недоступности зависимости;
// перед использованием значения вызывающий обязан проверить Degraded.
type Result[T any] struct {
	Value    T
	Degraded bool
	// Reason описывает причину деградации для логов.
	Reason string
}

// Ok оборачивает настоящее значение.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// DegradedDefault оборачивает заглушку.
func DegradedDefault[T any](v T, reason string) Result[T] {
	return Result[T]{Value: v, Degraded: true, Reason: reason}
}

// UnknownUser: заглушка пользователя при недоступности сервиса аккаунтов.
func UnknownUser(id int64) User {
	return User{ID: id, Name: "Unknown User", Active: false}
}

// UnknownProduct: заглушка товара при недоступности каталога.
func UnknownProduct(id int64) Product {
	return Product{ID: id, Title: "Unknown Product", Active: false}
}
