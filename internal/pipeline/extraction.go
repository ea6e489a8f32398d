package pipeline

import (
	"mime"
	"strings"
)

// ExtractionType selects the engine pipeline used to turn a download
// into documents. The set is closed; the registry rejects anything else.
type ExtractionType string

// Extraction types accepted by the registry. Unknown and UnknownNew are
// distinct opaque tags the engine dispatches on.
const (
	ExtractionUnknown        ExtractionType = "unknown"
	ExtractionTesseract      ExtractionType = "tesseract"
	ExtractionTextPDF        ExtractionType = "text_pdf"
	ExtractionHTML           ExtractionType = "html"
	ExtractionMSWordDoc      ExtractionType = "msword_doc"
	ExtractionMSWordDocx     ExtractionType = "msword_docx"
	ExtractionPowerPointPPT  ExtractionType = "mspowerpoint_ppt"
	ExtractionPowerPointPPTX ExtractionType = "mspowerpoint_pptx"
	ExtractionExcelXLS       ExtractionType = "msexcel_xls"
	ExtractionRTF            ExtractionType = "rtf"
	ExtractionUnknownNew     ExtractionType = "unknown_new"
	ExtractionPDFToText      ExtractionType = "extractor_pdftotext"
)

var knownExtractionTypes = map[ExtractionType]struct{}{
	ExtractionUnknown:        {},
	ExtractionTesseract:      {},
	ExtractionTextPDF:        {},
	ExtractionHTML:           {},
	ExtractionMSWordDoc:      {},
	ExtractionMSWordDocx:     {},
	ExtractionPowerPointPPT:  {},
	ExtractionPowerPointPPTX: {},
	ExtractionExcelXLS:       {},
	ExtractionRTF:            {},
	ExtractionUnknownNew:     {},
	ExtractionPDFToText:      {},
}

// Known reports whether t is a member of the closed extraction-type set.
func (t ExtractionType) Known() bool {
	_, ok := knownExtractionTypes[t]
	return ok
}

// ExtractionTypeForMIME returns the default extraction type for a MIME
// type when the caller does not specify one.
func ExtractionTypeForMIME(mimeType string) ExtractionType {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "application/pdf":
		return ExtractionUnknown
	case "text/html", "application/xhtml+xml":
		return ExtractionHTML
	case "application/msword":
		return ExtractionMSWordDoc
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ExtractionMSWordDocx
	case "application/vnd.ms-excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ExtractionExcelXLS
	case "application/vnd.ms-powerpoint":
		return ExtractionPowerPointPPT
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ExtractionPowerPointPPTX
	case "application/rtf", "text/rtf":
		return ExtractionRTF
	default:
		return ExtractionUnknown
	}
}

// ServeFromOriginDefault returns the default serve-from policy for a
// MIME type: archive for everything except HTML. The Content-Type value
// is parsed strictly; parameters and case do not affect the outcome.
func ServeFromOriginDefault(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}
