// Package extract turns uploaded documents into plain text for generation.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
)

// Placeholder stands in for the text of a document that could not be read.
const Placeholder = "No extractable text was found in the uploaded document."

// ExtractionError reports a document that could not be parsed.
type ExtractionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %q: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %q: %s", e.Name, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extract returns the text content of a PDF or plain-text document.
func Extract(name, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ExtractionError{Name: name, Reason: "empty document"}
	}
	if isPDF(data) {
		text, err := extractPDF(data)
		if err != nil {
			return "", &ExtractionError{Name: name, Reason: "unreadable pdf", Err: err}
		}
		if text == "" {
			return "", &ExtractionError{Name: name, Reason: "pdf has no text layer"}
		}
		return text, nil
	}
	if isTextType(name, contentType) || isProbablyText(data) {
		return collapseWhitespace(string(data)), nil
	}
	return "", &ExtractionError{Name: name, Reason: "unsupported document type " + contentType}
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func isTextType(name, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// isProbablyText checks the first KB for valid UTF-8 without control bytes.
func isProbablyText(b []byte) bool {
	sample := b
	if len(sample) > 1024 {
		sample = sample[:1024]
		// drop a multibyte rune split by the cut
		for i := 0; i < utf8.UTFMax-1 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if !utf8.Valid(sample) {
		return false
	}
	for _, c := range sample {
		if c < 0x09 || (c > 0x0d && c < 0x20) {
			return false
		}
	}
	return true
}

func extractPDF(data []byte) (text string, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
