package control

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets this package's plain request/response structs travel over grpc
// without a protoc-generated Marshal/Unmarshal pair. Registering it under the name
// "proto" overrides grpc's built-in default codec (which requires proto.Message),
// so grpc.NewServer/grpc.NewClient pick it up transparently: no per-call
// grpc.CallContentSubtype needed, matching how evolution_server.go and
// federation_server.go never think about the codec at all because protoc-gen-go
// wires the default for them.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
