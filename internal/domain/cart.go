package domain

import "time"

// CartItem: позиция корзины. Пара (ProductID, Size) уникальна в пределах корзины.
// Цены: снимок складской записи на момент последнего изменения позиции.
type CartItem struct {
	ID                   int64     `json:"id"`
	CartID               int64     `json:"cart_id"`
	ProductID            int64     `json:"product_id"`
	Size                 string    `json:"size"`
	Quantity             int32     `json:"quantity"`
	PriceMinor           int64     `json:"price_minor"`
	DiscountedPriceMinor int64     `json:"discounted_price_minor"`
	Title                string    `json:"title"`
	ImageURL             string    `json:"image_url,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Key возвращает складской ключ позиции.
func (i CartItem) Key() StockKey {
	return StockKey{ProductID: i.ProductID, Size: i.Size}
}

// EffectivePriceMinor возвращает цену со скидкой, если она задана, иначе базовую.
func (i CartItem) EffectivePriceMinor() int64 {
	if i.DiscountedPriceMinor > 0 {
		return i.DiscountedPriceMinor
	}
	return i.PriceMinor
}

// Cart хранит позиции пользователя; у пользователя одна корзина.
// Итоговые поля вычисляются только через Recalculate.
type Cart struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	Items                []CartItem `json:"items"`
	TotalItems           int32      `json:"total_items"`
	OriginalPriceMinor   int64      `json:"original_price_minor"`
	DiscountedPriceMinor int64      `json:"discounted_price_minor"`
	DiscountMinor        int64      `json:"discount_minor"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Recalculate пересчитывает итоги корзины по позициям. Идемпотентна.
func (c *Cart) Recalculate() {
	var items int32
	var original, discounted int64
	for _, item := range c.Items {
		items += item.Quantity
		original += int64(item.Quantity) * item.PriceMinor
		discounted += int64(item.Quantity) * item.EffectivePriceMinor()
	}
	c.TotalItems = items
	c.OriginalPriceMinor = original
	c.DiscountedPriceMinor = discounted
	c.DiscountMinor = original - discounted
}

// FindItem ищет позицию по идентификатору.
func (c *Cart) FindItem(itemID int64) (int, bool) {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

// FindByKey ищет позицию по паре (товар, размер).
func (c *Cart) FindByKey(key StockKey) (int, bool) {
	for i, item := range c.Items {
		if item.Key() == key {
			return i, true
		}
	}
	return -1, false
}

// RemoveItems удаляет позиции с указанными идентификаторами и пересчитывает итоги.
// Возвращает количество удалённых позиций.
func (c *Cart) RemoveItems(ids ...int64) int {
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := c.Items[:0]
	removed := 0
	for _, item := range c.Items {
		if _, ok := drop[item.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	c.Recalculate()
	return removed
}

// Clone возвращает независимую копию корзины.
func (c Cart) Clone() Cart {
	c.Items = append([]CartItem(nil), c.Items...)
	return c
}
