// Package pdfutil reads basic facts out of PDF uploads with ledongthuc/pdf.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Info is what the upload policy records about a PDF.
type Info struct {
	Pages     int
	HasText   bool
	Encrypted bool
}

// Inspect parses PDF bytes. The parser can panic on malformed input, so that
// is turned into an error.
func Inspect(data []byte) (info Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return Info{Encrypted: true}, nil
		}
		return Info{}, fmt.Errorf("new pdf reader: %w", err)
	}
	info.Pages = doc.NumPage()
	for page := 1; page <= info.Pages && !info.HasText; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		info.HasText = strings.TrimSpace(content) != ""
	}
	return info, nil
}

// PageCount returns the number of pages, or an error for unreadable input.
func PageCount(data []byte) (int, error) {
	info, err := Inspect(data)
	if err != nil {
		return 0, err
	}
	return info.Pages, nil
}
