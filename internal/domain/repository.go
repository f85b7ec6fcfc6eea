package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ вместе с позициями одной записью.
	// Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя (новые первыми) с опциональным ограничением.
	ListByUser(userID int64, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	// Delete удаляет заказ, его позиции и платёж. Используется как компенсация при неудачном списании.
	Delete(id string) error
}

// PaymentRepository хранит платёжные записи заказов.
type PaymentRepository interface {
	// UpsertPending создаёт платёж заказа или заменяет PENDING/FAILED-запись новой (новый TxnRef).
	// Для оплаченного заказа возвращает ErrOrderAlreadyPaid.
	UpsertPending(payment PaymentDetail) error
	// GetByTxnRef ищет платёж по идентификатору транзакции или возвращает ErrTransactionNotFound.
	GetByTxnRef(txnRef string) (PaymentDetail, error)
	// GetByOrder возвращает платёж заказа или ErrPaymentNotFound.
	GetByOrder(orderID string) (PaymentDetail, error)
	// SaveWithOrder атомарно сохраняет платёж и заказ (optimistic locking по заказу).
	SaveWithOrder(payment PaymentDetail, order Order) error
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// Get возвращает корзину пользователя или ErrCartNotFound.
	Get(userID int64) (Cart, error)
	// Save сохраняет корзину целиком и назначает идентификаторы новой корзине и новым позициям.
	Save(cart Cart) (Cart, error)
	// ItemOwners возвращает владельца (user id) для каждой найденной позиции.
	ItemOwners(itemIDs []int64) (map[int64]int64, error)
}

// StockRepository хранит складские записи. Количество никогда не уходит ниже нуля.
type StockRepository interface {
	Get(key StockKey) (StockRecord, error)
	// Upsert записывает складскую запись целиком.
	Upsert(record StockRecord) (StockRecord, error)
	// DecrementIfAvailable одним условным обновлением уменьшает остаток
	// либо возвращает *InsufficientStockError, не меняя запись.
	DecrementIfAvailable(key StockKey, qty int32) (StockRecord, error)
	// Increment увеличивает остаток.
	Increment(key StockKey, qty int32) (StockRecord, error)
}

// ProductRepository хранит проекцию каталога.
type ProductRepository interface {
	Get(id int64) (Product, error)
	Upsert(product Product) error
	IncrementSold(id int64, qty int32) error
}
