package pesit

// EBCDIC/ASCII duality (spec §4.1). Some IBM mainframe clients speak "pure
// EBCDIC": the connection prologue and string-typed parameter values are
// encoded in EBCDIC (IBM code page 037) rather than ASCII. Binary headers
// (length prefixes, phase/type/id bytes, counters) are never translated.

// ebcdicToASCII is the IBM CP037 -> ASCII translation table.
var ebcdicToASCII = [256]byte{
	0x00, 0x01, 0x02, 0x03, 0x9c, 0x09, 0x86, 0x7f, 0x97, 0x8d, 0x8e, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	0x10, 0x11, 0x12, 0x13, 0x9d, 0x85, 0x08, 0x87, 0x18, 0x19, 0x92, 0x8f, 0x1c, 0x1d, 0x1e, 0x1f,
	0x80, 0x81, 0x82, 0x83, 0x84, 0x0a, 0x17, 0x1b, 0x88, 0x89, 0x8a, 0x8b, 0x8c, 0x05, 0x06, 0x07,
	0x90, 0x91, 0x16, 0x93, 0x94, 0x95, 0x96, 0x04, 0x98, 0x99, 0x9a, 0x9b, 0x14, 0x15, 0x9e, 0x1a,
	0x20, 0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0x5b, 0x2e, 0x3c, 0x28, 0x2b, 0x21,
	0x26, 0xa9, 0xaa, 0xab, 0xac, 0xad, 0xae, 0xaf, 0xb0, 0xb1, 0x5d, 0x24, 0x2a, 0x29, 0x3b, 0x5e,
	0x2d, 0x2f, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0x7c, 0x2c, 0x25, 0x5f, 0x3e, 0x3f,
	0xba, 0xbb, 0xbc, 0xbd, 0xbe, 0xbf, 0xc0, 0xc1, 0xc2, 0x60, 0x3a, 0x23, 0x40, 0x27, 0x3d, 0x22,
	0xc3, 0x61, 0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9,
	0xca, 0x6a, 0x6b, 0x6c, 0x6d, 0x6e, 0x6f, 0x70, 0x71, 0x72, 0xcb, 0xcc, 0xcd, 0xce, 0xcf, 0xd0,
	0xd1, 0x7e, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7,
	0xd8, 0xd9, 0xda, 0xdb, 0xdc, 0xdd, 0xde, 0xdf, 0xe0, 0xe1, 0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7,
	0x7b, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49, 0xe8, 0xe9, 0xea, 0xeb, 0xec, 0xed,
	0x7d, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f, 0x50, 0x51, 0x52, 0xee, 0xef, 0xf0, 0xf1, 0xf2, 0xf3,
	0x5c, 0x9f, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8, 0xf9,
	0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0xfa, 0xfb, 0xfc, 0xfd, 0xfe, 0xff,
}

// asciiToEBCDIC is the inverse mapping, derived once at init from ebcdicToASCII.
var asciiToEBCDIC [256]byte

func init() {
	for e, a := range ebcdicToASCII {
		asciiToEBCDIC[a] = byte(e)
	}
}

// EBCDICToASCII decodes an EBCDIC-encoded byte slice to ASCII. The input is
// not modified; a new slice is returned.
func EBCDICToASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ebcdicToASCII[c]
	}
	return out
}

// ASCIIToEBCDIC encodes an ASCII byte slice to EBCDIC. The input is not
// modified; a new slice is returned.
func ASCIIToEBCDIC(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = asciiToEBCDIC[c]
	}
	return out
}

// DetectEBCDICPrologue implements the session-start detection rule (spec
// §4.1): a session is "pure EBCDIC" if both bytes of what would be the
// outer length prefix have the high bit set, and the first 24 bytes decode
// from EBCDIC to printable ASCII starting with "PESIT".
func DetectEBCDICPrologue(first24 []byte) bool {
	if len(first24) < 24 {
		return false
	}
	if first24[0]&0x80 == 0 || first24[1]&0x80 == 0 {
		return false
	}
	decoded := EBCDICToASCII(first24)
	if len(decoded) < 5 {
		return false
	}
	if string(decoded[:5]) != "PESIT" {
		return false
	}
	for _, c := range decoded {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// EBCDICAck0 returns the literal 4-byte EBCDIC encoding of "ACK0", sent
// without a length prefix in reply to a detected EBCDIC prologue.
func EBCDICAck0() []byte {
	return ASCIIToEBCDIC([]byte("ACK0"))
}
