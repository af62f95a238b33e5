package mqintegration

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// rfh2Version is the only version this minimal envelope supports.
const rfh2Version = 2

// rfh2 folder names round-tripped by wrapRFH2/unwrapRFH2. The RFH2
// header codec's full folder grammar (NameValue pairs, pub/sub
// folders, etc.) is an external concern per the purpose statement;
// this implements only enough of the envelope to carry a payload
// through PUT/GET and report its wrapped length.
var rfh2FolderNames = []string{"mcd", "jms", "usr"}

// wrapRFH2 prefixes payload with a minimal RFH2 v2 header: the fixed
// 36-byte structure followed by one empty folder per name in
// rfh2FolderNames, each declared with CCSID 1208 (UTF-8) and native
// encoding.
func wrapRFH2(payload []byte) []byte {
	var folders bytes.Buffer
	for _, name := range rfh2FolderNames {
		folder := fmt.Sprintf("<%s></%s>", name, name)
		padded := padTo4(folder)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(padded)))
		folders.Write(lenBuf[:])
		folders.WriteString(padded)
	}

	structLength := 36 + folders.Len()

	var header bytes.Buffer
	header.WriteString("RFH ")
	writeUint32(&header, rfh2Version)
	writeUint32(&header, uint32(structLength))
	writeUint32(&header, 546) // MQENC_NATIVE on little-endian platforms
	writeUint32(&header, 1208)
	header.WriteString("MQSTR   ")
	writeUint32(&header, 0)
	writeUint32(&header, 1208)
	header.Write(folders.Bytes())

	out := make([]byte, 0, header.Len()+len(payload))
	out = append(out, header.Bytes()...)
	out = append(out, payload...)
	return out
}

// unwrapRFH2 strips a previously-applied RFH2 header, returning the
// original payload bytes.
func unwrapRFH2(raw []byte) ([]byte, error) {
	if len(raw) < 36 || string(raw[:4]) != "RFH " {
		return nil, fmt.Errorf("message does not carry an RFH2 header")
	}

	structLength := binary.LittleEndian.Uint32(raw[8:12])
	if int(structLength) > len(raw) {
		return nil, fmt.Errorf("RFH2 struct length %d exceeds message length %d", structLength, len(raw))
	}

	return raw[structLength:], nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// padTo4 pads s with trailing spaces to a multiple of 4 bytes, the
// alignment RFH2 folders require.
func padTo4(s string) string {
	rem := len(s) % 4
	if rem == 0 {
		return s
	}
	return s + string(bytes.Repeat([]byte{' '}, 4-rem))
}
