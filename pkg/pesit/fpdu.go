package pesit

// FPDU is a Frame Protocol Data Unit: one framed protocol message (spec §3).
//
// For non-DTF variants, Payload is the raw encoded parameter area and Params
// holds the decoded view; exactly one of them is authoritative depending on
// whether the FPDU came from Parse (Params is authoritative, Payload kept
// for reference) or was built programmatically (Params is authoritative,
// Payload is produced by Encode).
//
// For DTF variants, Payload is raw article data: for DTF with IDSrc > 1 it is
// a sequence of length-prefixed articles; for DTFDA/DTFMA/DTFFA and DTF with
// IDSrc == 1 it is the single article's bytes with no inner framing.
type FPDU struct {
	Type   FpduType
	IDDst  byte
	IDSrc  byte // destination/source connection id, or article count for DTF
	Params ParamArea
	Payload []byte
}

// ArticleCount returns the number of articles this FPDU carries, valid only
// for Type == DTF (where IDSrc doubles as the article count per spec §3).
func (f FPDU) ArticleCount() int {
	if f.Type != DTF {
		return 1
	}
	return int(f.IDSrc)
}

// NewResponse builds a bare FPDU with the given id_dst/id_src; callers pass
// the peer's connection id as idDst per the spec §3 echoing invariant.
func NewResponse(t FpduType, idDst, idSrc byte) FPDU {
	return FPDU{Type: t, IDDst: idDst, IDSrc: idSrc}
}
