// Package detect classifies raw feed payloads by dialect.
package detect

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"feedsync/internal/model"
)

// Detect classifies raw as RSS/Atom or JSON Feed content. A hint of FormatRss
// or FormatJson is trusted without re-sniffing. Otherwise the payload is
// checked for XML well-formedness first, then JSON validity; no feed
// semantics are inspected here.
func Detect(raw string, hint model.FormatType) model.FormatType {
	if hint == model.FormatRss || hint == model.FormatJson {
		return hint
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return model.FormatUnknown
	}

	if wellFormedXML(trimmed) {
		return model.FormatRss
	}

	if json.Valid([]byte(trimmed)) {
		return model.FormatJson
	}

	return model.FormatUnknown
}

// wellFormedXML consumes every token so trailing garbage after the document
// element is rejected. At least one element is required: the xml decoder
// accepts bare character data without complaint.
func wellFormedXML(text string) bool {
	decoder := xml.NewDecoder(strings.NewReader(text))
	sawElement := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return sawElement
		}
		if err != nil {
			return false
		}

		if _, ok := token.(xml.StartElement); ok {
			sawElement = true
		}
	}
}
