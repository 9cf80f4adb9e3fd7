package grpcapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype the backend service is spoken in
// ("application/grpc+json"). Messages are the pkg/types structs.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }
