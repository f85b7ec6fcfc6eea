package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

// Демо-данные для локального запуска и нагрузочного теста.
const (
	DemoProductID  int64 = 1
	DemoUsers            = 100
	demoAddressOff int64 = 1000
)

// DemoAddressID возвращает адрес доставки демо-пользователя.
func DemoAddressID(userID int64) int64 {
	return demoAddressOff + userID
}

// seedCatalog создаёт демо-товар с размерами S/M/L, если его ещё нет.
func seedCatalog(ctx context.Context, c *catalog.Catalog, logger *log.Entry) error {
	res, err := c.GetProduct(ctx, DemoProductID)
	if err == nil && !res.Degraded {
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrProductNotFound) {
		return err
	}
	product := domain.Product{ID: DemoProductID, Title: "Demo hoodie", Active: true}
	if err := c.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("seed product: %w", err)
	}
	for _, size := range []string{"S", "M", "L"} {
		_, err := c.SetStock(ctx, domain.StockRecord{
			ProductID:       DemoProductID,
			Size:            size,
			Quantity:        1000,
			PriceMinor:      250000,
			DiscountPercent: 10,
		})
		if err != nil {
			return fmt.Errorf("seed stock %s: %w", size, err)
		}
	}
	logger.WithField("product_id", DemoProductID).Info("demo catalog seeded")
	return nil
}

// seedAccounts добавляет демо-пользователей 1..DemoUsers с адресом DemoAddressID.
func seedAccounts(d *account.Directory) {
	for id := int64(1); id <= DemoUsers; id++ {
		d.AddUser(domain.User{
			ID:     id,
			Email:  fmt.Sprintf("user%d@example.com", id),
			Name:   fmt.Sprintf("Demo user %d", id),
			Active: true,
		})
		d.AddAddress(id, DemoAddressID(id))
	}
}
