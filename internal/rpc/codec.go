// Package rpc describes the CareService wire surface: a JSON codec, the
// request and response messages, and a hand-written service descriptor.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Codec marshals messages as JSON. Registered under content-subtype "json".
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	if raw, ok := v.(*Raw); ok {
		return raw.Data, nil
	}
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if raw, ok := v.(*Raw); ok {
		raw.Data = append([]byte(nil), data...)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return "json" }

// Raw carries already-encoded bytes through the codec untouched. The
// grpc-web bridge uses it to forward browser frames.
type Raw struct {
	Data []byte
}

func init() {
	encoding.RegisterCodec(Codec{})
}
