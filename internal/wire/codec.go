package wire

import (
	jsoniter "github.com/json-iterator/go"
)

// json is the codec for every frame body. HTML escaping is off so that
// comments and descriptions survive a round trip byte-for-byte.
var json = jsoniter.Config{
	EscapeHTML:                    false,
	SortMapKeys:                   true,
	ValidateJsonRawMessage:        true,
	ObjectFieldMustBeSimpleString: true,
	CaseSensitive:                 true,
}.Froze()

// RawMessage is an undecoded JSON value inside an envelope
type RawMessage = jsoniter.RawMessage

// Marshal encodes v with the frame codec
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data with the frame codec
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
