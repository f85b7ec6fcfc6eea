// Package rpc описывает gRPC-контракты сервисов магазина.
// Сообщения передаются в JSON через кодек, зарегистрированный под подтипом "json";
// дескрипторы сервисов написаны вручную.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName: подтип content-type (application/grpc+json).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption включает JSON-кодек для исходящего вызова.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

// Empty: пустой ответ.
type Empty struct{}
