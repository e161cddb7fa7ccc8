package pesit

import (
	"encoding/binary"
	"fmt"
)

// ParseError reports a framing or parameter decode failure. Callers that
// need to ABORT with a wire diagnostic should treat every ParseError as
// D3-311 (protocol error) unless a more specific mapping applies.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "pesit: parse: " + e.Reason }

func parseErrf(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

const (
	outerLenSize    = 2
	internalHdrSize = 2 + 1 + 1 + 1 + 1 // internal_len + phase + type + id_dst + id_src
	minFrameSize    = outerLenSize + internalHdrSize
)

// groupTagBit marks a TLV id byte as introducing a parameter group rather
// than a plain parameter (the wire format's only way to tell PI and PGI
// id bytes apart, since both are drawn from the same byte space).
const groupTagBit = 0x80

// Parse decodes a complete wire frame (outer length prefix included) into
// an FPDU. ebcdic is not used here: parameter values are kept as raw bytes,
// and string-typed ones are decoded from EBCDIC on demand by
// Parameter.String(ebcdic); binary header fields are never translated.
func Parse(frame []byte, ebcdic bool) (FPDU, error) {
	if len(frame) < minFrameSize {
		return FPDU{}, parseErrf("short buffer: %d bytes, need at least %d", len(frame), minFrameSize)
	}

	outerLen := binary.BigEndian.Uint16(frame[0:2])
	if int(outerLen) != len(frame)-outerLenSize {
		return FPDU{}, parseErrf("outer length %d does not match frame body %d", outerLen, len(frame)-outerLenSize)
	}

	internalLen := binary.BigEndian.Uint16(frame[2:4])
	if int(internalLen) != len(frame)-outerLenSize-2 {
		return FPDU{}, parseErrf("internal length %d does not match remaining frame %d", internalLen, len(frame)-outerLenSize-2)
	}

	phase := Phase(frame[4])
	typ := frame[5]
	idDst := frame[6]
	idSrc := frame[7]
	body := frame[8:]

	fpduType, ok := FromWireCode(phase, typ)
	if !ok {
		return FPDU{}, parseErrf("unknown phase/type 0x%02x/0x%02x", phase, typ)
	}

	f := FPDU{Type: fpduType, IDDst: idDst, IDSrc: idSrc, Payload: body}

	if fpduType.IsDTFVariant() {
		// Raw data payload: no parameter area to decode.
		return f, nil
	}

	params, err := parseParamArea(body)
	if err != nil {
		return FPDU{}, err
	}
	f.Params = params
	_ = ebcdic // decoding of individual string PIs happens lazily via Parameter.String(ebcdic)
	return f, nil
}

func parseParamArea(body []byte) (ParamArea, error) {
	var area ParamArea
	off := 0
	for off < len(body) {
		id := body[off]
		off++
		if off >= len(body) {
			return ParamArea{}, parseErrf("truncated parameter at offset %d: missing length", off-1)
		}

		length, lenBytes, err := decodeLength(body[off:])
		if err != nil {
			return ParamArea{}, err
		}
		off += lenBytes

		if off+length > len(body) {
			return ParamArea{}, parseErrf("parameter value length %d exceeds frame (offset %d, remaining %d)", length, off, len(body)-off)
		}
		value := body[off : off+length]
		off += length

		if id&groupTagBit != 0 {
			nested, err := parseParamArea(value)
			if err != nil {
				return ParamArea{}, err
			}
			area.Groups = append(area.Groups, Group{ID: PGI(id &^ groupTagBit), Params: nested.Params})
			area.order = append(area.order, element{kind: elemGroup, idx: len(area.Groups) - 1})
		} else {
			area.Params = append(area.Params, Parameter{ID: PI(id), Value: append([]byte(nil), value...)})
			area.order = append(area.order, element{kind: elemParam, idx: len(area.Params) - 1})
		}
	}
	return area, nil
}

// decodeLength reads a TLV length field: a single byte with the high bit
// clear encodes lengths 0-127 directly; a high-bit-set byte introduces a
// 2-byte big-endian length (top bit of the first byte masked off), allowing
// lengths up to 32767.
func decodeLength(b []byte) (length int, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, parseErrf("truncated length field")
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1, nil
	}
	if len(b) < 2 {
		return 0, 0, parseErrf("truncated extended length field")
	}
	length = int(b[0]&0x7f)<<8 | int(b[1])
	return length, 2, nil
}

func encodeLength(n int) ([]byte, error) {
	if n < 0 || n > 0x7fff {
		return nil, fmt.Errorf("pesit: length %d out of range", n)
	}
	if n < 0x80 {
		return []byte{byte(n)}, nil
	}
	return []byte{0x80 | byte(n>>8), byte(n)}, nil
}

// Encode serializes an FPDU into a complete wire frame, including both
// length prefixes. ebcdic is not used here: parameter values are written
// as the bytes they already hold (ParamArea.AddString EBCDIC-encodes string
// values when asked), and Encode never re-translates them.
func Encode(f FPDU, ebcdic bool) ([]byte, error) {
	_ = ebcdic
	phase, typ, ok := f.Type.WireCode()
	if !ok {
		return nil, fmt.Errorf("pesit: encode: unknown FPDU type %v", f.Type)
	}

	var body []byte
	if f.Type.IsDTFVariant() {
		body = f.Payload
	} else {
		encoded, err := encodeParamArea(f.Params)
		if err != nil {
			return nil, err
		}
		body = encoded
	}

	internalLen := 2 + 4 + len(body) // internal_len field itself + phase/type/id_dst/id_src + body
	frame := make([]byte, 0, 2+internalLen)

	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(internalLen-2))
	hdr[2] = phase2Byte(phase)
	hdr[3] = typ
	frame = append(frame, 0, 0) // placeholder outer length
	frame = append(frame, hdr[0:2]...)
	frame = append(frame, hdr[2], hdr[3], f.IDDst, f.IDSrc)
	frame = append(frame, body...)

	binary.BigEndian.PutUint16(frame[0:2], uint16(len(frame)-outerLenSize))
	return frame, nil
}

func phase2Byte(p Phase) byte { return byte(p) }

// encodeParamArea serializes a in its recorded wire order, so that a
// ParamArea produced by Parse re-encodes to the same bytes even when PGIs
// are interleaved between PIs (e.g. PGI_09, PI_13, PGI_30 in a CONNECT or
// CREATE frame). A ParamArea built purely through Add/AddGroup carries the
// same order, since both methods append to it as they're called; only a
// ParamArea assembled by setting Params/Groups directly (never done by this
// package's own code) would fall back to the legacy params-then-groups
// order.
func encodeParamArea(a ParamArea) ([]byte, error) {
	order := a.order
	if len(order) == 0 {
		for i := range a.Params {
			order = append(order, element{kind: elemParam, idx: i})
		}
		for i := range a.Groups {
			order = append(order, element{kind: elemGroup, idx: i})
		}
	}

	var out []byte
	for _, e := range order {
		switch e.kind {
		case elemParam:
			p := a.Params[e.idx]
			enc, err := encodeTLV(byte(p.ID), p.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		case elemGroup:
			g := a.Groups[e.idx]
			nested, err := encodeParamArea(ParamArea{Params: g.Params})
			if err != nil {
				return nil, err
			}
			enc, err := encodeTLV(byte(g.ID)|groupTagBit, nested)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
	}
	return out, nil
}

func encodeTLV(id byte, value []byte) ([]byte, error) {
	lenBytes, err := encodeLength(len(value))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(lenBytes)+len(value))
	out = append(out, id)
	out = append(out, lenBytes...)
	out = append(out, value...)
	return out, nil
}
