package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractionTypeKnown(t *testing.T) {
	t.Parallel()

	for _, et := range []ExtractionType{
		ExtractionUnknown, ExtractionTesseract, ExtractionTextPDF, ExtractionHTML,
		ExtractionMSWordDoc, ExtractionMSWordDocx, ExtractionPowerPointPPT,
		ExtractionPowerPointPPTX, ExtractionExcelXLS, ExtractionRTF,
		ExtractionUnknownNew, ExtractionPDFToText,
	} {
		require.True(t, et.Known(), "%s", et)
	}
	require.False(t, ExtractionType("ocr").Known())
	require.False(t, ExtractionType("").Known())
}

func TestExtractionTypeForMIME(t *testing.T) {
	t.Parallel()

	cases := map[string]ExtractionType{
		"text/html":          ExtractionHTML,
		"TEXT/HTML":          ExtractionHTML,
		"application/pdf":    ExtractionUnknown,
		"application/msword": ExtractionMSWordDoc,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ExtractionMSWordDocx,
		"application/vnd.ms-excel":      ExtractionExcelXLS,
		"application/vnd.ms-powerpoint": ExtractionPowerPointPPT,
		"application/rtf":               ExtractionRTF,
		"image/png":                     ExtractionUnknown,
	}
	for mimeType, want := range cases {
		require.Equal(t, want, ExtractionTypeForMIME(mimeType), "mime=%s", mimeType)
	}
}

func TestServeFromOriginDefault(t *testing.T) {
	t.Parallel()

	require.True(t, ServeFromOriginDefault("text/html"))
	require.True(t, ServeFromOriginDefault("text/html; charset=utf-8"))
	require.True(t, ServeFromOriginDefault("Text/HTML"))
	require.False(t, ServeFromOriginDefault("application/pdf"))
	require.False(t, ServeFromOriginDefault("not a content type at all /"))
	require.False(t, ServeFromOriginDefault(""))
}

func TestDigestBlobKey(t *testing.T) {
	t.Parallel()

	hex := strings.Repeat("ab", 48)
	d := Digest(hex)
	require.True(t, d.Valid())
	require.Equal(t, "file-by-sha384/"+hex, d.BlobKey())

	require.False(t, Digest(strings.Repeat("ab", 32)).Valid())
	require.False(t, Digest(strings.Repeat("zz", 48)).Valid())
}
