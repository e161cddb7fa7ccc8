package pesit

import "fmt"

// Diag is a 3-byte diagnostic code (PI_02), conventionally formatted as
// "Dx-yzz" (spec §4.9 / C11).
type Diag struct {
	Class byte // 'x' in "Dx-yzz": 0, 2 or 3 for this engine
	Code  uint16
}

func (d Diag) String() string {
	return fmt.Sprintf("D%d-%03d", d.Class, d.Code)
}

// Bytes encodes the diagnostic as the 3-byte PI_02 wire value.
func (d Diag) Bytes() []byte {
	return []byte{d.Class, byte(d.Code >> 8), byte(d.Code)}
}

// DiagFromBytes decodes a 3-byte PI_02 value.
func DiagFromBytes(b []byte) (Diag, error) {
	if len(b) != 3 {
		return Diag{}, fmt.Errorf("pesit: diagnostic code must be 3 bytes, got %d", len(b))
	}
	return Diag{Class: b[0], Code: uint16(b[1])<<8 | uint16(b[2])}, nil
}

// Mandatory diagnostic codes (spec §4.9).
var (
	D0_000 = Diag{0, 0}   // OK
	D0_301 = Diag{0, 301} // invalid partner
	D0_302 = Diag{0, 302} // invalid password
	D0_303 = Diag{0, 303} // invalid server name
	D0_308 = Diag{0, 308} // version mismatch

	D2_205 = Diag{2, 205} // file not found
	D2_211 = Diag{2, 211} // access denied
	D2_213 = Diag{2, 213} // write error
	D2_219 = Diag{2, 219} // no space
	D2_220 = Diag{2, 220} // article length violation
	D2_222 = Diag{2, 222} // invalid data without sync
	D2_226 = Diag{2, 226} // direction or ACL mismatch

	D3_301 = Diag{3, 301} // file-selection error
	D3_304 = Diag{3, 304} // access refused
	D3_308 = Diag{3, 308} // version unsupported
	D3_311 = Diag{3, 311} // protocol error
)

// Error wraps a Diag as a Go error, letting internal code propagate a wire
// diagnostic alongside a human-readable message without re-deriving it at
// the point an ABORT/RCONNECT is emitted.
type Error struct {
	Code    Diag
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a diagnostic Error.
func NewError(code Diag, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsDiag extracts the Diag carried by err, if any, defaulting to D3-311
// (protocol error) for any other error kind — every unclassified failure
// on the wire path becomes a protocol error, never raw exception detail.
func AsDiag(err error) Diag {
	if err == nil {
		return D0_000
	}
	var de *Error
	if ok := errorsAs(err, &de); ok {
		return de.Code
	}
	return D3_311
}

// errorsAs is a tiny local wrapper so this file only imports "errors" once
// callers need it; kept here to avoid a stutter import in small files.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
