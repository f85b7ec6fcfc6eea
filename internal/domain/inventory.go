package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockKey идентифицирует складскую запись: товар и размер.
type StockKey struct {
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%d/%s", k.ProductID, k.Size)
}

// StockRequest: запрос на проверку, списание или возврат количества.
type StockRequest struct {
	Key      StockKey `json:"key"`
	Quantity int32    `json:"quantity"`
}

// StockRecord: складская запись по размеру товара вместе с ценой.
// Quantity никогда не бывает отрицательным.
type StockRecord struct {
	ProductID            int64     `json:"product_id"`
	Size                 string    `json:"size"`
	Quantity             int32     `json:"quantity"`
	PriceMinor           int64     `json:"price_minor"`
	DiscountPercent      int32     `json:"discount_percent"`
	DiscountedPriceMinor int64     `json:"discounted_price_minor"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Key возвращает ключ записи.
func (r StockRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, Size: r.Size}
}

// Reprice пересчитывает цену со скидкой. Вызывается при каждой записи.
func (r *StockRecord) Reprice() {
	r.DiscountedPriceMinor = DiscountedPrice(r.PriceMinor, r.DiscountPercent)
}

// DiscountedPrice считает price * (100 - percent) / 100 с округлением половины вверх.
// Процент вне [0, 100] обрезается до границ.
func DiscountedPrice(priceMinor int64, percent int32) int64 {
	switch {
	case percent <= 0:
		return priceMinor
	case percent >= 100:
		return 0
	}
	factor := decimal.NewFromInt32(100 - percent).Div(decimal.NewFromInt(100))
	return decimal.NewFromInt(priceMinor).Mul(factor).Round(0).IntPart()
}

// MergeStockRequests суммирует количества по одинаковым ключам, сохраняя порядок первого появления.
func MergeStockRequests(reqs []StockRequest) []StockRequest {
	merged := make([]StockRequest, 0, len(reqs))
	index := make(map[StockKey]int, len(reqs))
	for _, req := range reqs {
		if i, ok := index[req.Key]; ok {
			merged[i].Quantity += req.Quantity
			continue
		}
		index[req.Key] = len(merged)
		merged = append(merged, req)
	}
	return merged
}

// Product: проекция карточки товара из каталога.
type Product struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Active       bool     `json:"active"`
	Images       []string `json:"images,omitempty"`
	QuantitySold int64    `json:"quantity_sold"`
}

// MainImage возвращает первое изображение товара или пустую строку.
func (p Product) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// User: проекция пользователя из сервиса аккаунтов.
type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Banned bool   `json:"banned"`
}

// CanOrder сообщает, может ли пользователь оформлять заказы.
func (u User) CanOrder() bool {
	return u.Active && !u.Banned
}
