package remote

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go structs as JSON. The remote boundary has no
// protobuf schema, so connect's default proto codecs cannot be used.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

// Codec returns the codec shared by the client adapter and test servers.
func Codec() connect.Codec {
	return jsonCodec{}
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
