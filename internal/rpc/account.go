package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const accountServiceName = "shop.v1.AccountService"

// Полные имена методов AccountService.
const (
	AccountGetUserMethod         = "/" + accountServiceName + "/GetUser"
	AccountValidateAddressMethod = "/" + accountServiceName + "/ValidateAddress"
)

// UserRequest адресует пользователя.
type UserRequest struct {
	UserID int64 `json:"user_id"`
}

// AddressRequest проверяет принадлежность адреса.
type AddressRequest struct {
	UserID    int64 `json:"user_id"`
	AddressID int64 `json:"address_id"`
}

// ValidateAddressResponse: результат проверки адреса.
type ValidateAddressResponse struct {
	Valid bool `json:"valid"`
}

// AccountServer: серверная сторона AccountService.
type AccountServer interface {
	GetUser(context.Context, *UserRequest) (*domain.User, error)
	ValidateAddress(context.Context, *AddressRequest) (*ValidateAddressResponse, error)
}

// AccountServiceDesc: дескриптор AccountService.
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: accountServiceName,
	HandlerType: (*AccountServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(accountServiceName, "GetUser", AccountServer.GetUser),
		unary(accountServiceName, "ValidateAddress", AccountServer.ValidateAddress),
	},
	Metadata: "shop/v1/account.json",
}

// RegisterAccountServer регистрирует реализацию на gRPC-сервере.
func RegisterAccountServer(s grpc.ServiceRegistrar, srv AccountServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}

// AccountClient вызывает AccountService.
type AccountClient struct {
	cc grpc.ClientConnInterface
}

// NewAccountClient создаёт клиента поверх соединения.
func NewAccountClient(cc grpc.ClientConnInterface) *AccountClient {
	return &AccountClient{cc: cc}
}

func (c *AccountClient) GetUser(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*domain.User, error) {
	return invoke[domain.User](ctx, c.cc, AccountGetUserMethod, in, opts...)
}

func (c *AccountClient) ValidateAddress(ctx context.Context, in *AddressRequest, opts ...grpc.CallOption) (*ValidateAddressResponse, error) {
	return invoke[ValidateAddressResponse](ctx, c.cc, AccountValidateAddressMethod, in, opts...)
}
