package grpcsvc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
)

// AccountService отдаёт справочник пользователей по gRPC.
type AccountService struct {
	directory *account.Directory
}

var _ rpc.AccountServer = (*AccountService)(nil)

// NewAccountService создаёт AccountService.
func NewAccountService(directory *account.Directory) *AccountService {
	return &AccountService{directory: directory}
}

func (s *AccountService) GetUser(ctx context.Context, req *rpc.UserRequest) (*domain.User, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	res, err := s.directory.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to load user")
	}
	return &res.Value, nil
}

func (s *AccountService) ValidateAddress(ctx context.Context, req *rpc.AddressRequest) (*rpc.ValidateAddressResponse, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	ok, err := s.directory.ValidateAddress(ctx, req.UserID, req.AddressID)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to validate address")
	}
	return &rpc.ValidateAddressResponse{Valid: ok}, nil
}
