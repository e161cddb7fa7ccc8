package pesit

import "fmt"

// PI is a Parameter Identifier: a typed field in an FPDU's parameter area.
type PI byte

// Parameter identifiers used by this engine (spec §3).
const (
	PI_01 PI = 1  // CRC
	PI_02 PI = 2  // diagnostic code (3 bytes)
	PI_03 PI = 3  // requester name
	PI_04 PI = 4  // server name
	PI_05 PI = 5  // password
	PI_06 PI = 6  // protocol version
	PI_07 PI = 7  // sync-point capability (window + interval KB)
	PI_11 PI = 11 // file type
	PI_12 PI = 12 // filename (virtual)
	PI_13 PI = 13 // transfer id
	PI_14 PI = 14 // requested attributes
	PI_15 PI = 15 // restart flag
	PI_17 PI = 17 // priority
	PI_18 PI = 18 // restart point (checkpoint number)
	PI_19 PI = 19 // end-of-transfer reason
	PI_20 PI = 20 // sync-point number
	PI_21 PI = 21 // compression
	PI_22 PI = 22 // access type (0=read, 1=write)
	PI_23 PI = 23 // resync enable
	PI_25 PI = 25 // maximum entity size
	PI_31 PI = 31 // article format
	PI_32 PI = 32 // article length
	PI_33 PI = 33 // file organization
	PI_42 PI = 42 // file-size reservation (KB)
	PI_91 PI = 91 // free-form message
	PI_99 PI = 99 // free-form message
)

// stringPIs are the PIs whose value is EBCDIC-decoded on EBCDIC sessions;
// everything else (binary headers, counters) is left untouched (spec §4.1).
var stringPIs = map[PI]bool{
	PI_03: true, PI_04: true, PI_05: true, PI_12: true, PI_91: true, PI_99: true,
}

// PGI is a Parameter Group Identifier: a container of related PIs.
type PGI byte

const (
	PGI_09 PGI = 9  // file identification (PI_11, PI_12)
	PGI_30 PGI = 30 // logical attributes (PI_31, PI_32, PI_33)
	PGI_40 PGI = 40 // physical attributes (PI_42)
)

// Parameter is a single (id, value) pair in an FPDU parameter area.
// Unknown PIs are preserved verbatim (id + raw value) so echo/relay is
// lossless, per the codec's "unknown PIs are preserved" guarantee.
type Parameter struct {
	ID    PI
	Value []byte
}

// Group is a decoded parameter group: a PGI wrapping nested parameters.
type Group struct {
	ID     PGI
	Params []Parameter
}

// elemKind tags an entry in ParamArea.order as referring to a slot in
// Params or in Groups.
type elemKind uint8

const (
	elemParam elemKind = iota
	elemGroup
)

// element records one position in wire order, pointing at the
// corresponding entry in Params or Groups.
type element struct {
	kind elemKind
	idx  int
}

// ParamArea is the decoded parameter area of an FPDU: a sequence of
// top-level parameters and groups. Params and Groups hold the decoded
// values themselves; order records the original interleaving between them
// (a CONNECT or CREATE frame routinely interleaves PGIs between PIs) so
// that Encode(Parse(frame)) reproduces the same byte sequence, not just the
// same parsed values.
type ParamArea struct {
	Params []Parameter
	Groups []Group
	order  []element
}

// Get returns the first top-level parameter with the given id.
func (a ParamArea) Get(id PI) (Parameter, bool) {
	for _, p := range a.Params {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// GetGroup returns the first group with the given id.
func (a ParamArea) GetGroup(id PGI) (Group, bool) {
	for _, g := range a.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// Get returns the first parameter with the given id inside the group.
func (g Group) Get(id PI) (Parameter, bool) {
	for _, p := range g.Params {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// Add appends a top-level parameter and returns the area for chaining.
func (a *ParamArea) Add(id PI, value []byte) *ParamArea {
	a.Params = append(a.Params, Parameter{ID: id, Value: value})
	a.order = append(a.order, element{kind: elemParam, idx: len(a.Params) - 1})
	return a
}

// AddString appends a string-valued parameter, encoding it to EBCDIC first
// when ebcdic is true and id is one of the recognized string PIs.
func (a *ParamArea) AddString(id PI, value string, ebcdic bool) *ParamArea {
	v := []byte(value)
	if ebcdic && stringPIs[id] {
		v = ASCIIToEBCDIC(v)
	}
	return a.Add(id, v)
}

// AddUint8 appends a single-byte unsigned integer parameter.
func (a *ParamArea) AddUint8(id PI, v uint8) *ParamArea {
	return a.Add(id, []byte{v})
}

// AddUint16 appends a big-endian two-byte unsigned integer parameter.
func (a *ParamArea) AddUint16(id PI, v uint16) *ParamArea {
	return a.Add(id, []byte{byte(v >> 8), byte(v)})
}

// AddUint32 appends a big-endian four-byte unsigned integer parameter.
func (a *ParamArea) AddUint32(id PI, v uint32) *ParamArea {
	return a.Add(id, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// AddGroup appends a parameter group.
func (a *ParamArea) AddGroup(g Group) *ParamArea {
	a.Groups = append(a.Groups, g)
	a.order = append(a.order, element{kind: elemGroup, idx: len(a.Groups) - 1})
	return a
}

// String renders a value as ASCII text, decoding from EBCDIC first if needed.
// Intended for string-typed PIs only.
func (p Parameter) String(ebcdic bool) string {
	if ebcdic {
		return string(EBCDICToASCII(p.Value))
	}
	return string(p.Value)
}

// Uint8 interprets the value as a single unsigned byte.
func (p Parameter) Uint8() (uint8, error) {
	if len(p.Value) != 1 {
		return 0, fmt.Errorf("pesit: PI_%02d: expected 1 byte, got %d", p.ID, len(p.Value))
	}
	return p.Value[0], nil
}

// Uint16 interprets the value as a big-endian two-byte unsigned integer.
func (p Parameter) Uint16() (uint16, error) {
	if len(p.Value) != 2 {
		return 0, fmt.Errorf("pesit: PI_%02d: expected 2 bytes, got %d", p.ID, len(p.Value))
	}
	return uint16(p.Value[0])<<8 | uint16(p.Value[1]), nil
}

// Uint32 interprets the value as a big-endian four-byte unsigned integer,
// accepting 1, 2, 3 or 4-byte encodings (diagnostic codes are 3 bytes).
func (p Parameter) Uint32() (uint32, error) {
	if len(p.Value) == 0 || len(p.Value) > 4 {
		return 0, fmt.Errorf("pesit: PI_%02d: expected 1-4 bytes, got %d", p.ID, len(p.Value))
	}
	var v uint32
	for _, b := range p.Value {
		v = v<<8 | uint32(b)
	}
	return v, nil
}
