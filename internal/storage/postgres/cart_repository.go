package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// CartRepository хранит корзины пользователей в PostgreSQL.
type CartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) *CartRepository {
	return &CartRepository{db: store.DB()}
}

func (r *CartRepository) Get(userID int64) (domain.Cart, error) {
	ctx, cancel := opContext()
	defer cancel()

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_items, original_price_minor, discounted_price_minor, discount_minor, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(
		&cart.ID, &cart.UserID, &cart.TotalItems, &cart.OriginalPriceMinor,
		&cart.DiscountedPriceMinor, &cart.DiscountMinor, &cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	items, err := loadCartItems(ctx, r.db, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

// Save сохраняет корзину целиком: удаляет пропавшие позиции, обновляет существующие и вставляет новые.
func (r *CartRepository) Save(cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := opContext()
	defer cancel()

	cart = cart.Clone()
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO carts (user_id, total_items, original_price_minor, discounted_price_minor, discount_minor, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (user_id) DO UPDATE
			SET total_items = EXCLUDED.total_items,
			    original_price_minor = EXCLUDED.original_price_minor,
			    discounted_price_minor = EXCLUDED.discounted_price_minor,
			    discount_minor = EXCLUDED.discount_minor,
			    updated_at = EXCLUDED.updated_at
			RETURNING id
		`,
			cart.UserID, cart.TotalItems, cart.OriginalPriceMinor,
			cart.DiscountedPriceMinor, cart.DiscountMinor, cart.UpdatedAt,
		).Scan(&cart.ID); err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		kept := make([]int64, 0, len(cart.Items))
		for _, item := range cart.Items {
			if item.ID != 0 {
				kept = append(kept, item.ID)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id = $1 AND NOT (id = ANY($2))
		`, cart.ID, kept); err != nil {
			return fmt.Errorf("delete removed cart items: %w", err)
		}

		for i := range cart.Items {
			cart.Items[i].CartID = cart.ID
			if err := saveCartItemTx(ctx, tx, &cart.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *CartRepository) ItemOwners(itemIDs []int64) (map[int64]int64, error) {
	owners := make(map[int64]int64, len(itemIDs))
	if len(itemIDs) == 0 {
		return owners, nil
	}

	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, c.user_id
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id = ANY($1)
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("query cart item owners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, userID int64
		if err := rows.Scan(&itemID, &userID); err != nil {
			return nil, fmt.Errorf("scan cart item owner: %w", err)
		}
		owners[itemID] = userID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart item owners: %w", err)
	}
	return owners, nil
}

func saveCartItemTx(ctx context.Context, tx *sql.Tx, item *domain.CartItem) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	if item.ID == 0 {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO cart_items (
				cart_id, product_id, size, quantity, price_minor,
				discounted_price_minor, title, image_url, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING id
		`,
			item.CartID, item.ProductID, item.Size, item.Quantity, item.PriceMinor,
			item.DiscountedPriceMinor, item.Title, item.ImageURL, item.UpdatedAt,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3,
		    price_minor = $4,
		    discounted_price_minor = $5,
		    title = $6,
		    image_url = $7,
		    updated_at = $8
		WHERE id = $1 AND cart_id = $2
	`,
		item.ID, item.CartID, item.Quantity, item.PriceMinor,
		item.DiscountedPriceMinor, item.Title, item.ImageURL, item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func loadCartItems(ctx context.Context, db *sql.DB, cartID int64) ([]domain.CartItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, cart_id, product_id, size, quantity, price_minor,
		       discounted_price_minor, title, image_url, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.Size, &item.Quantity, &item.PriceMinor,
			&item.DiscountedPriceMinor, &item.Title, &item.ImageURL, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var _ domain.CartRepository = (*CartRepository)(nil)
