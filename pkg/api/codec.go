// Package api defines the Connect RPC surface of Scopewise: request and
// response messages, service handler interfaces, handler constructors and
// typed clients. Messages are plain Go structs carried by a JSON codec.
package api

import (
	"encoding/json"
	"fmt"
)

// Codec is the JSON codec shared by handlers and clients. It registers under
// the name "json", so requests use Content-Type application/json.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
