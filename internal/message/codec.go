package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodePayload decodes a request/response JSON frame into v. It is a
// plain json.Unmarshal; the byte-payload UTF-8/Latin-1 fallback lives
// in EncodeBytesPayload.
func DecodePayload(v any, data []byte) error {
	return json.Unmarshal(data, v)
}

// EncodeBytesPayload turns an arbitrary byte slice into a JSON-safe
// string: UTF-8 when valid, Latin-1 (ISO-8859-1) decoded otherwise,
// since every byte value under 256 has a defined Latin-1 code point
// and can never itself fail to decode.
func EncodeBytesPayload(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("encoding byte payload: %w", err)
	}
	return string(decoded), nil
}

// Marshal serializes v to JSON, matching the codec's "objects not
// otherwise serializable cause the codec to raise" contract: a marshal
// failure is returned as an error rather than silently dropped.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
