package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// IdempotencyKeyHeader: metadata-ключ идемпотентности оформления.
	IdempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не больше одного раза на ключ из metadata.
// Без ключа запрос выполняется как обычно. Успешный ответ сохраняется и возвращается
// на повтор; после ошибки ключ с тем же запросом можно использовать снова.
func withIdempotency[T any](
	s *OrderService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}
	key, ok := readIdempotencyKey(ctx)
	if !ok {
		return handler(ctx)
	}
	logger := s.logger.WithFields(map[string]any{"method": method, "idempotency_key": key})

	hash, err := requestHash(method, req)
	if err != nil {
		logger.WithError(err).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(key, hash, s.now().Add(idempotencyTTL))
	if err != nil {
		return replay[T](s, err, record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.cacheFailure(key, runErr)
		return nil, runErr
	}

	body, err := json.Marshal(resp)
	if err == nil {
		err = s.idemRepo.MarkDone(key, body, int(codes.OK))
	}
	if err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, nil
}

func replay[T any](s *OrderService, createErr error, record domain.IdempotencyRecord) (*T, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		resp := new(T)
		if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	default:
		return nil, decodeFailure(record)
	}
}

func (s *OrderService) cacheFailure(key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	payload, err := json.Marshal(idempotencyErrorPayload{Code: int32(code), Message: st.Message()})
	if err != nil {
		payload = nil
	}
	if err := s.idemRepo.MarkFailed(key, payload, int(code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure")
	}
}

func decodeFailure(record domain.IdempotencyRecord) error {
	var payload idempotencyErrorPayload
	if err := json.Unmarshal(record.ResponseBody, &payload); err == nil && payload.Code > 0 && payload.Code <= int32(codes.Unauthenticated) {
		return status.Error(codes.Code(payload.Code), payload.Message)
	}
	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func readIdempotencyKey(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get(IdempotencyKeyHeader) {
		if key := strings.TrimSpace(v); key != "" {
			return key, true
		}
	}
	return "", false
}

// requestHash: sha256 от имени метода и JSON запроса.
func requestHash(method string, req any) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(method+":"), data...))
	return hex.EncodeToString(sum[:]), nil
}
