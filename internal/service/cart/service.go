// Package cart управляет корзиной пользователя: добавление, изменение и удаление позиций
// с проверкой остатков в каталоге и cache-aside в Redis.
package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	cachestore "github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

const (
	cacheTimeout = time.Second
	lockStripes  = 64
)

// Cache: кэш корзин. Любая ошибка Get считается промахом.
type Cache interface {
	Get(ctx context.Context, userID int64) (domain.Cart, error)
	Set(ctx context.Context, cart domain.Cart) error
	Invalidate(ctx context.Context, userID int64) error
}

// Service управляет корзинами.
type Service struct {
	carts   domain.CartRepository
	catalog domain.CatalogService
	cache   Cache
	logger  *log.Entry
	now     func() time.Time

	group singleflight.Group
	// Изменения одной корзины сериализуются: Save перезаписывает корзину целиком.
	locks [lockStripes]sync.Mutex
	// generations растёт при каждом сохранении; загрузка, пережившая сохранение, не пишет в кэш.
	generations [lockStripes]atomic.Uint64
}

// Option настраивает Service.
type Option func(*Service)

// WithCache включает cache-aside.
func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис корзин.
func NewService(carts domain.CartRepository, catalog domain.CatalogService, opts ...Option) *Service {
	s := &Service{
		carts:   carts,
		catalog: catalog,
		logger:  log.New().WithField("component", "cart-service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает корзину пользователя или пустую несохранённую корзину.
func (s *Service) Get(ctx context.Context, userID int64) (domain.Cart, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cachestore.ErrCacheMiss) {
			s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache read failed")
		}
	}

	// Одновременные промахи по одной корзине идут в хранилище один раз.
	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		generation := s.generations[stripe(userID)].Load()
		cart, err := s.load(userID)
		if err != nil {
			return domain.Cart{}, err
		}
		s.fillCache(ctx, cart, generation)
		return cart, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return v.(domain.Cart).Clone(), nil
}

// AddItem добавляет товар в корзину. Если позиция (товар, размер) уже есть,
// количество складывается и проверяется суммарно.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, size string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Cart{}, fmt.Errorf("product %d: %w", productID, domain.ErrProductInactive)
		}
		return domain.Cart{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	if product.Degraded || !product.Value.Active {
		return domain.Cart{}, fmt.Errorf("product %d: %w", productID, domain.ErrProductInactive)
	}

	key := domain.StockKey{ProductID: productID, Size: size}
	stock, err := s.stock(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		idx, found := cart.FindByKey(key)
		combined := int64(qty)
		if found {
			combined += int64(cart.Items[idx].Quantity)
		}
		if combined > int64(stock.Quantity) {
			return &domain.InsufficientStockError{
				ProductID: productID,
				Size:      size,
				Requested: int32(min(combined, math.MaxInt32)),
				Available: stock.Quantity,
			}
		}

		if !found {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Size: size})
			idx = len(cart.Items) - 1
		}
		item := &cart.Items[idx]
		item.Quantity = int32(combined)
		item.Title = product.Value.Title
		item.ImageURL = product.Value.MainImage()
		snapshotPrice(item, stock)
		item.UpdatedAt = s.now()
		return nil
	})
}

// UpdateItem задаёт количество позиции. Ноль удаляет позицию.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, qty int32) (domain.Cart, error) {
	if qty < 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	current, err := s.load(userID)
	if err != nil {
		return domain.Cart{}, err
	}
	idx, ok := current.FindItem(itemID)
	if !ok {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}
	stock, err := s.stock(ctx, current.Items[idx].Key())
	if err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		idx, ok := cart.FindItem(itemID)
		if !ok {
			return domain.ErrCartItemNotFound
		}
		item := &cart.Items[idx]
		if qty > stock.Quantity {
			return &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Size:      item.Size,
				Requested: qty,
				Available: stock.Quantity,
			}
		}
		item.Quantity = qty
		snapshotPrice(item, stock)
		item.UpdatedAt = s.now()
		return nil
	})
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		if cart.RemoveItems(itemID) == 0 {
			return domain.ErrCartItemNotFound
		}
		return nil
	})
}

// RemoveItems удаляет оформленные позиции. Отсутствующие идентификаторы пропускаются.
func (s *Service) RemoveItems(ctx context.Context, userID int64, itemIDs []int64) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		cart.RemoveItems(itemIDs...)
		return nil
	})
}

// Clear очищает корзину. Сама корзина не удаляется.
func (s *Service) Clear(ctx context.Context, userID int64) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(cart *domain.Cart) error {
		cart.Items = nil
		return nil
	})
}

// Select возвращает выбранные для оформления позиции корзины пользователя.
// Позиция из чужой корзины даёт ErrForbiddenItem, пустой выбор: ErrEmptySelection.
func (s *Service) Select(ctx context.Context, userID int64, itemIDs []int64) ([]domain.CartItem, error) {
	if len(itemIDs) == 0 {
		return nil, domain.ErrEmptySelection
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owners, err := s.carts.ItemOwners(itemIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve cart items: %w", err)
	}
	for _, id := range itemIDs {
		if owner, ok := owners[id]; ok && owner != userID {
			s.logger.WithFields(log.Fields{
				"user_id":      userID,
				"cart_item_id": id,
				"security":     true,
			}).Warn("checkout with foreign cart item")
			return nil, domain.ErrForbiddenItem
		}
	}

	cart, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = struct{}{}
	}
	selected := make([]domain.CartItem, 0, len(itemIDs))
	for _, item := range cart.Items {
		if _, ok := wanted[item.ID]; ok {
			selected = append(selected, item)
		}
	}
	if len(selected) == 0 {
		return nil, domain.ErrEmptySelection
	}
	return selected, nil
}

// mutate загружает корзину под блокировкой пользователя, применяет fn,
// пересчитывает итоги, сохраняет и сбрасывает кэш.
func (s *Service) mutate(ctx context.Context, userID int64, fn func(*domain.Cart) error) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}

	lock := &s.locks[stripe(userID)]
	lock.Lock()
	defer lock.Unlock()

	cart, err := s.load(userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := fn(&cart); err != nil {
		return domain.Cart{}, err
	}
	cart.Recalculate()
	cart.UpdatedAt = s.now()

	saved, err := s.carts.Save(cart)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.generations[stripe(userID)].Add(1)
	s.invalidate(ctx, userID)
	return saved, nil
}

func (s *Service) load(userID int64) (domain.Cart, error) {
	cart, err := s.carts.Get(userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{UserID: userID}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

func (s *Service) stock(ctx context.Context, key domain.StockKey) (domain.StockRecord, error) {
	record, err := s.catalog.GetStock(ctx, key)
	if errors.Is(err, domain.ErrStockNotFound) {
		return domain.StockRecord{}, fmt.Errorf("%s: %w", key, domain.ErrSizeNotFound)
	}
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("get stock %s: %w", key, err)
	}
	return record, nil
}

// fillCache пишет загруженную корзину в кэш, если после загрузки никто не сохранял
// корзины этой полосы. Проверка и запись идут под той же блокировкой, что и mutate.
func (s *Service) fillCache(ctx context.Context, cart domain.Cart, generation uint64) {
	if s.cache == nil {
		return
	}
	i := stripe(cart.UserID)
	lock := &s.locks[i]
	lock.Lock()
	defer lock.Unlock()
	if s.generations[i].Load() != generation {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cart); err != nil {
		s.logger.WithError(err).WithField("user_id", cart.UserID).Warn("cart cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache invalidation failed")
	}
}

func stripe(userID int64) uint64 {
	return uint64(userID) % lockStripes
}

func snapshotPrice(item *domain.CartItem, stock domain.StockRecord) {
	item.PriceMinor = stock.PriceMinor
	item.DiscountedPriceMinor = stock.DiscountedPriceMinor
}
