package pesit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildConnect() FPDU {
	var params ParamArea
	params.AddString(PI_03, "LOOP", false)
	params.AddString(PI_04, "SRV", false)
	params.AddUint8(PI_06, 2)
	params.AddUint8(PI_22, 0)
	return FPDU{Type: CONNECT, IDDst: 0, IDSrc: 1, Params: params}
}

func TestRoundTripSimpleFPDU(t *testing.T) {
	f := buildConnect()
	for _, ebcdic := range []bool{false, true} {
		encoded, err := Encode(f, ebcdic)
		require.NoError(t, err)

		decoded, err := Parse(encoded, ebcdic)
		require.NoError(t, err)

		require.Equal(t, f.Type, decoded.Type)
		require.Equal(t, f.IDDst, decoded.IDDst)
		require.Equal(t, f.IDSrc, decoded.IDSrc)
		require.Len(t, decoded.Params.Params, len(f.Params.Params))
		for i, p := range f.Params.Params {
			require.Equal(t, p.ID, decoded.Params.Params[i].ID)
			require.Equal(t, p.Value, decoded.Params.Params[i].Value)
		}
	}
}

func TestRoundTripWithGroup(t *testing.T) {
	var fileID ParamArea
	fileID.AddUint8(PI_11, 1)
	fileID.AddString(PI_12, "FILE", false)

	var params ParamArea
	params.AddUint16(PI_13, 1)
	params.AddGroup(Group{ID: PGI_09, Params: fileID.Params})

	f := FPDU{Type: CREATE, IDDst: 1, IDSrc: 1, Params: params}

	encoded, err := Encode(f, false)
	require.NoError(t, err)

	decoded, err := Parse(encoded, false)
	require.NoError(t, err)

	require.Len(t, decoded.Params.Groups, 1)
	g := decoded.Params.Groups[0]
	require.Equal(t, PGI_09, g.ID)
	name, ok := g.Get(PI_12)
	require.True(t, ok)
	require.Equal(t, "FILE", name.String(false))
}

// TestRoundTripPreservesInterleavedWireOrder pins Encode(Parse(frame)) ==
// frame for a frame that interleaves a group between two top-level
// parameters (PGI_09, PI_13, PGI_30), the way a real CONNECT/CREATE frame
// does. A codec that buckets all parameters before all groups would still
// parse this correctly but re-encode it with a different byte layout.
func TestRoundTripPreservesInterleavedWireOrder(t *testing.T) {
	var params ParamArea
	params.AddGroup(Group{ID: PGI_09, Params: []Parameter{{ID: PI_12, Value: []byte("FILE")}}})
	params.AddUint16(PI_13, 7)
	params.AddGroup(Group{ID: PGI_30, Params: []Parameter{{ID: PI_31, Value: []byte{1}}}})

	f := FPDU{Type: CREATE, IDDst: 1, IDSrc: 1, Params: params}

	encoded, err := Encode(f, false)
	require.NoError(t, err)

	decoded, err := Parse(encoded, false)
	require.NoError(t, err)

	reencoded, err := Encode(decoded, false)
	require.NoError(t, err)

	require.Equal(t, encoded, reencoded)
}

func TestRoundTripDTFVariant(t *testing.T) {
	f := FPDU{Type: DTFDA, IDDst: 1, IDSrc: 1, Payload: []byte("Hello PeSIT!")}
	encoded, err := Encode(f, false)
	require.NoError(t, err)

	decoded, err := Parse(encoded, false)
	require.NoError(t, err)
	require.Equal(t, f.Payload, decoded.Payload)
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := Parse([]byte{0, 1, 2}, false)
	require.Error(t, err)
}

func TestParseRejectsUnknownPhaseType(t *testing.T) {
	// Build a minimal well-framed header with an invalid (phase, type) pair.
	frame := []byte{0, 6, 0, 4, 0xEE, 0xEE, 0, 0}
	_, err := Parse(frame, false)
	require.Error(t, err)
}

func TestEncodeArticlesExtractArticlesRoundTrip(t *testing.T) {
	articles := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	payload, err := EncodeArticles(articles)
	require.NoError(t, err)

	extracted, err := ExtractArticles(payload, len(articles))
	require.NoError(t, err)
	require.Equal(t, articles, extracted)
}

func TestValidateMultiArticlePayload(t *testing.T) {
	articles := [][]byte{[]byte("abc"), []byte("de")}
	payload, err := EncodeArticles(articles)
	require.NoError(t, err)

	err = ValidateMultiArticlePayload(len(payload), []int{3, 2}, 2)
	require.NoError(t, err)

	err = ValidateMultiArticlePayload(len(payload), []int{3, 2}, 3)
	require.Error(t, err)
}

func TestEBCDICPrologueDetection(t *testing.T) {
	plain := []byte("PESIT   CXCLIENT********")
	require.Len(t, plain, 24)
	encoded := ASCIIToEBCDIC(plain)
	// EBCDIC 'P' and 'E' already have the high bit set, as the detection rule requires for the first two bytes.
	require.True(t, DetectEBCDICPrologue(encoded))
	require.False(t, DetectEBCDICPrologue(plain))
}

func TestEBCDICRoundTrip(t *testing.T) {
	s := "Hello PeSIT Partner-01"
	require.Equal(t, s, string(EBCDICToASCII(ASCIIToEBCDIC([]byte(s)))))
}

func TestDiagRoundTrip(t *testing.T) {
	d := D2_220
	decoded, err := DiagFromBytes(d.Bytes())
	require.NoError(t, err)
	require.Equal(t, d, decoded)
}
