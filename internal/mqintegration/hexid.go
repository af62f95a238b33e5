package mqintegration

import "encoding/hex"

// tohex renders a raw MsgId/CorrelId byte string as a lowercase hex
// string safe to embed in a JSON response, matching the reference's
// _get_safe_message_descriptor helper.
func tohex(id []byte) string {
	return hex.EncodeToString(id)
}

// fromhex is tohex's inverse, used to rebuild a raw MsgId from a
// previously-reported hex string when reissuing a get-by-id.
func fromhex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
