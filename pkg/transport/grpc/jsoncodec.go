package grpc

import (
    "encoding/json"

    "google.golang.org/grpc/encoding"
)

// jsonCodec is a gRPC codec for JSON payloads. Consensus DTOs are plain
// structs with json tags, so no protobuf codegen is required.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

var _ encoding.Codec = jsonCodec{}

func init() {
    // Register once at package init.
    encoding.RegisterCodec(jsonCodec{})
}
