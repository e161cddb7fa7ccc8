package pesit

import (
	"encoding/binary"
	"fmt"
)

// IsDTF inspects the phase/type bytes of a raw frame body (without reading
// the length prefixes) to decide whether it is a DTF-family FPDU, without a
// full parse. frameBody must start at the internal-length field.
func IsDTF(frameBody []byte) bool {
	if len(frameBody) < 4 {
		return false
	}
	phase := Phase(frameBody[2])
	typ := frameBody[3]
	t, ok := FromWireCode(phase, typ)
	return ok && t.IsDTFVariant()
}

// ExtractArticles returns the article byte slices carried by a multi-article
// DTF payload (articleCount == id_src tuples of len(2B-be)|article). It does
// not copy: each returned slice aliases payload.
//
// For DTFDA/DTFMA/DTFFA and single-article DTF, callers should not use this
// function: those variants carry exactly one un-prefixed article and the
// whole payload *is* the article.
func ExtractArticles(payload []byte, articleCount int) ([][]byte, error) {
	articles := make([][]byte, 0, articleCount)
	off := 0
	for i := 0; i < articleCount; i++ {
		if off+2 > len(payload) {
			return nil, fmt.Errorf("pesit: article %d: truncated length prefix", i)
		}
		length := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+length > len(payload) {
			return nil, fmt.Errorf("pesit: article %d: length %d exceeds remaining payload", i, length)
		}
		articles = append(articles, payload[off:off+length])
		off += length
	}
	if off != len(payload) {
		return nil, fmt.Errorf("pesit: trailing %d bytes after %d articles", len(payload)-off, articleCount)
	}
	return articles, nil
}

// EncodeArticles inserts the 2-byte big-endian length prefix ahead of each
// article and concatenates them into a single multi-article DTF payload.
func EncodeArticles(articles [][]byte) ([]byte, error) {
	total := 0
	for _, a := range articles {
		if len(a) > 0xFFFF {
			return nil, fmt.Errorf("pesit: article length %d exceeds 65535", len(a))
		}
		total += 2 + len(a)
	}
	out := make([]byte, 0, total)
	for _, a := range articles {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(a)))
		out = append(out, lenBuf[:]...)
		out = append(out, a...)
	}
	return out, nil
}

// ValidateMultiArticlePayload checks the spec §3 invariant
// sum(article_lengths) + 2*count == payload_length, count == id_src.
func ValidateMultiArticlePayload(payloadLen int, articleLengths []int, idSrc byte) error {
	if len(articleLengths) != int(idSrc) {
		return fmt.Errorf("pesit: article count %d does not match id_src %d", len(articleLengths), idSrc)
	}
	sum := 0
	for _, l := range articleLengths {
		sum += l
	}
	if sum+2*len(articleLengths) != payloadLen {
		return fmt.Errorf("pesit: sum(article_lengths)=%d + 2*%d != payload_length=%d", sum, len(articleLengths), payloadLen)
	}
	return nil
}
