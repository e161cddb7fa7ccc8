package pesit

import (
	"fmt"
	"strings"
)

// Dump renders an FPDU as a human-readable single line, useful for session
// logs and the pesitctl inspect support library. It never panics on
// malformed parameter values; it best-effort stringifies what it has.
func (f FPDU) Dump(ebcdic bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s id_dst=%d id_src=%d", f.Type, f.IDDst, f.IDSrc)

	if f.Type.IsDTFVariant() {
		fmt.Fprintf(&b, " payload=%dB", len(f.Payload))
		return b.String()
	}

	for _, p := range f.Params.Params {
		if stringPIs[p.ID] {
			fmt.Fprintf(&b, " PI_%02d=%q", p.ID, p.String(ebcdic))
		} else {
			fmt.Fprintf(&b, " PI_%02d=%x", p.ID, p.Value)
		}
	}
	for _, g := range f.Params.Groups {
		fmt.Fprintf(&b, " PGI_%02d{", g.ID)
		for i, p := range g.Params {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "PI_%02d=%x", p.ID, p.Value)
		}
		b.WriteByte('}')
	}
	return b.String()
}
