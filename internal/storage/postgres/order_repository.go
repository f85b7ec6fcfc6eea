package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const orderColumns = `
	id, user_id, address_id, status, payment_status, payment_method,
	total_items, total_price_minor, original_price_minor, discount_minor,
	version, created_at, updated_at, delivered_at`

// OrderRepository: PostgreSQL-хранилище заказов, их позиций и платежей.
// Реализует OrderRepository и PaymentRepository поверх одной базы,
// поэтому SaveWithOrder выполняется в одной транзакции.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository и PaymentRepository.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

func (r *OrderRepository) Create(order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`,
			order.ID, order.UserID, order.AddressID, string(order.Status),
			string(order.PaymentStatus), string(order.PaymentMethod),
			order.TotalItems, order.TotalPriceMinor, order.OriginalPriceMinor, order.DiscountMinor,
			order.Version, order.CreatedAt, order.UpdatedAt, order.DeliveredAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for position, item := range order.Items {
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (
					id, order_id, position, product_id, size, title,
					quantity, price_minor, discounted_price_minor
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`,
				item.ID, order.ID, position, item.ProductID, item.Size, item.Title,
				item.Quantity, item.PriceMinor, item.DiscountedPriceMinor,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *OrderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *OrderRepository) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Save обновляет заголовок заказа. Позиции: снимок на момент оформления и не меняются.
func (r *OrderRepository) Save(order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return saveOrderTx(ctx, tx, order)
	})
}

// Delete удаляет заказ; позиции и платёж удаляются каскадно.
func (r *OrderRepository) Delete(id string) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// UpsertPending создаёт платёж заказа или заменяет неоплаченный, сохраняя его ID и время создания.
func (r *OrderRepository) UpsertPending(payment domain.PaymentDetail) error {
	ctx, cancel := opContext()
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, payment.OrderID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}

		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM payment_details WHERE order_id = $1 FOR UPDATE
		`, payment.OrderID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if payment.ID == "" {
				payment.ID = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO payment_details (
					id, order_id, txn_ref, amount_minor, status, response_code,
					gateway_txn_no, bank_code, secure_hash, raw_callback, created_at, updated_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			`,
				payment.ID, payment.OrderID, payment.TxnRef, payment.AmountMinor, string(payment.Status),
				payment.ResponseCode, payment.GatewayTxnNo, payment.BankCode, payment.SecureHash,
				nullableBytes(payment.RawCallback), payment.CreatedAt, payment.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("select payment for update: %w", err)
		}

		if domain.PaymentStatus(status) == domain.PaymentStatusCompleted {
			return domain.ErrOrderAlreadyPaid
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_details
			SET txn_ref = $2,
			    amount_minor = $3,
			    status = $4,
			    response_code = $5,
			    gateway_txn_no = $6,
			    bank_code = $7,
			    secure_hash = $8,
			    raw_callback = $9,
			    updated_at = $10
			WHERE order_id = $1
		`,
			payment.OrderID, payment.TxnRef, payment.AmountMinor, string(payment.Status),
			payment.ResponseCode, payment.GatewayTxnNo, payment.BankCode, payment.SecureHash,
			nullableBytes(payment.RawCallback), payment.UpdatedAt,
		); err != nil {
			return fmt.Errorf("replace pending payment: %w", err)
		}
		return nil
	})
}

func (r *OrderRepository) GetByTxnRef(txnRef string) (domain.PaymentDetail, error) {
	payment, err := r.getPayment(`txn_ref = $1`, txnRef)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentDetail{}, domain.ErrTransactionNotFound
	}
	return payment, err
}

func (r *OrderRepository) GetByOrder(orderID string) (domain.PaymentDetail, error) {
	payment, err := r.getPayment(`order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentDetail{}, domain.ErrPaymentNotFound
	}
	return payment, err
}

// SaveWithOrder сохраняет результат callback и новый статус заказа в одной транзакции.
func (r *OrderRepository) SaveWithOrder(payment domain.PaymentDetail, order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_details
			SET status = $2,
			    response_code = $3,
			    gateway_txn_no = $4,
			    bank_code = $5,
			    secure_hash = $6,
			    raw_callback = $7,
			    updated_at = $8
			WHERE order_id = $1
		`,
			payment.OrderID, string(payment.Status), payment.ResponseCode, payment.GatewayTxnNo,
			payment.BankCode, payment.SecureHash, nullableBytes(payment.RawCallback), payment.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrPaymentNotFound
		}
		return saveOrderTx(ctx, tx, order)
	})
}

func (r *OrderRepository) getPayment(where string, arg any) (domain.PaymentDetail, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		payment domain.PaymentDetail
		status  string
		raw     []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, txn_ref, amount_minor, status, response_code,
		       gateway_txn_no, bank_code, secure_hash, raw_callback, created_at, updated_at
		FROM payment_details
		WHERE `+where, arg).Scan(
		&payment.ID, &payment.OrderID, &payment.TxnRef, &payment.AmountMinor, &status,
		&payment.ResponseCode, &payment.GatewayTxnNo, &payment.BankCode, &payment.SecureHash,
		&raw, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentDetail{}, err
		}
		return domain.PaymentDetail{}, fmt.Errorf("select payment: %w", err)
	}
	payment.Status = domain.PaymentStatus(status)
	payment.RawCallback = append([]byte(nil), raw...)
	return payment, nil
}

func saveOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    payment_method = $3,
		    total_items = $4,
		    total_price_minor = $5,
		    original_price_minor = $6,
		    discount_minor = $7,
		    delivered_at = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $10
		  AND version = $11
	`,
		string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		order.TotalItems, order.TotalPriceMinor, order.OriginalPriceMinor, order.DiscountMinor,
		order.DeliveredAt, order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, size, title, quantity, price_minor, discounted_price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Size, &item.Title,
			&item.Quantity, &item.PriceMinor, &item.DiscountedPriceMinor,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                             domain.Order
		status, paymentStatus, paymentMet string
		deliveredAt                       sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.AddressID, &status, &paymentStatus, &paymentMet,
		&order.TotalItems, &order.TotalPriceMinor, &order.OriginalPriceMinor, &order.DiscountMinor,
		&order.Version, &order.CreatedAt, &order.UpdatedAt, &deliveredAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.PaymentMethod = domain.PaymentMethod(paymentMet)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		order.DeliveredAt = &t
	}
	return order, nil
}

var (
	_ domain.OrderRepository   = (*OrderRepository)(nil)
	_ domain.PaymentRepository = (*OrderRepository)(nil)
)
