// Package wire implements a compact TLV (Type-Length-Value) encoding
// used to frame log entries and metadata records.
//
// Record format is based on ToyTLV (MIT licence) written by Victor
// Grishchenko in 2024: https://github.com/learn-decentralized-systems/toytlv
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const caseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("wire: incomplete data")
	ErrBadRecord  = errors.New("wire: bad TLV record format")
)

// ProbeHeader analyzes a TLV record header and extracts type and size
// information.
//
// Returns:
//   - lit: record type ('A'-'Z', '0' for tiny, '-' for error, 0 for incomplete)
//   - hdrlen: header length (1, 2, or 5 bytes)
//   - bodylen: body length in bytes
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9':
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	case dlit >= 'a' && dlit <= 'z':
		if len(data) < 2 {
			return 0, 0, 0
		}
		lit = dlit - caseBit
		hdrlen = 2
		bodylen = int(data[1])
	case dlit >= 'A' && dlit <= 'Z':
		if len(data) < 5 {
			return 0, 0, 0
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			return '-', 0, 0
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// AppendHeader constructs and appends a TLV record header, selecting
// tiny/short/long encoding automatically from body length and case.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ caseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record type must be A..Z")
	}
	switch {
	case bodylen < 10 && (lit&caseBit) != 0:
		ret = append(into, byte('0'+bodylen))
	case bodylen > 0xff:
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	default:
		ret = append(into, lit|caseBit, byte(bodylen))
	}
	return ret
}

// Take extracts a TLV record of the given type from trusted data.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAny extracts any TLV record from trusted data.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] &^ caseBit
	body, rest = Take(lit, data)
	return
}

// TakeWary is like Take but returns an explicit error for untrusted data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TotalLen sums the lengths of multiple byte slices.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append constructs a complete TLV record and appends it to the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	total := TotalLen(body)
	res = AppendHeader(into, lit, total)
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record creates a complete, freshly-allocated TLV record.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// Concat efficiently concatenates multiple byte slices with pre-allocation.
func Concat(msg ...[]byte) []byte {
	total := TotalLen(msg)
	ret := make([]byte, 0, total)
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// OpenHeader begins a streamed TLV record; pair with CloseHeader.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &^= caseBit
	if lit < 'A' || lit > 'Z' {
		panic("TLV liters are uppercase A-Z")
	}
	res = append(buf, lit)
	res = append(res, 0, 0, 0, 0)
	return len(res), res
}

// CloseHeader finalizes a streamed TLV record started with OpenHeader.
func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("CloseHeader: bad bookmark")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}
