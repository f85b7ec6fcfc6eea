package remote

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/resilience"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
)

// AccountClient ходит во внешний сервис аккаунтов.
type AccountClient struct {
	client          *rpc.AccountClient
	getUser         *resilience.Guard
	validateAddress *resilience.Guard
}

// NewAccountClient создаёт клиента поверх соединения с сервисом аккаунтов.
func NewAccountClient(cc grpc.ClientConnInterface, cfg Config) *AccountClient {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "account-client")
	}
	return &AccountClient{
		client:          rpc.NewAccountClient(cc),
		getUser:         cfg.guard("account.get_user", true, logger),
		validateAddress: cfg.guard("account.validate_address", true, logger),
	}
}

// Guards возвращает защитные обёртки клиента.
func (c *AccountClient) Guards() []*resilience.Guard {
	return []*resilience.Guard{c.getUser, c.validateAddress}
}

// GetUser при недоступности сервиса возвращает неактивного "Unknown User" с Degraded.
func (c *AccountClient) GetUser(ctx context.Context, userID int64) (domain.Result[domain.User], error) {
	return resilience.Call(ctx, c.getUser, func(ctx context.Context) (domain.Result[domain.User], error) {
		user, err := c.client.GetUser(ctx, &rpc.UserRequest{UserID: userID})
		if err != nil {
			return domain.Result[domain.User]{}, rpc.FromStatus(err)
		}
		return domain.Ok(*user), nil
	}, resilience.Placeholder(domain.UnknownUser(userID)))
}

// ValidateAddress при недоступности сервиса возвращает ErrServiceUnavailable:
// неподтверждённый адрес не считается верным.
func (c *AccountClient) ValidateAddress(ctx context.Context, userID, addressID int64) (bool, error) {
	return resilience.Call(ctx, c.validateAddress, func(ctx context.Context) (bool, error) {
		resp, err := c.client.ValidateAddress(ctx, &rpc.AddressRequest{UserID: userID, AddressID: addressID})
		if err != nil {
			return false, rpc.FromStatus(err)
		}
		return resp.Valid, nil
	}, resilience.Unavailable[bool]("validate address"))
}

var _ domain.AccountService = (*AccountClient)(nil)
