// Package media checks uploads before they are stored: size, extension,
// media type and a basic magic-byte sniff so a renamed executable cannot pose
// as a PDF or an Office file.
package media

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kiabasekou/ged-project/internal/model"
	pdfutil "github.com/kiabasekou/ged-project/internal/pdf"
)

// DefaultMaxSize is the largest accepted upload.
const DefaultMaxSize = 100 << 20 // 100 MiB

// DefaultExtensions is the accepted extension list.
var DefaultExtensions = []string{
	".pdf", ".docx", ".doc", ".xlsx", ".xls", ".pptx", ".ppt",
	".txt", ".rtf", ".odt", ".ods", ".odp",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff",
	".zip", ".rar", ".7z", ".msg", ".eml",
}

var knownTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".ppt":  "application/vnd.ms-powerpoint",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".zip":  "application/zip",
	".rar":  "application/vnd.rar",
	".7z":   "application/x-7z-compressed",
	".msg":  "application/vnd.ms-outlook",
	".eml":  "message/rfc822",
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

var zipBased = map[string]bool{".docx": true, ".xlsx": true, ".pptx": true, ".zip": true}

// Report describes an accepted upload.
type Report struct {
	Name      string
	Extension string
	MediaType string
	Size      int64
	// Pages is set for readable PDFs.
	Pages int
}

// Policy validates uploads.
type Policy struct {
	MaxSize    int64
	Extensions []string
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{MaxSize: DefaultMaxSize, Extensions: DefaultExtensions}
}

// Inspect validates an upload and works out its media type. Errors wrap
// model.ErrValidation.
func (p Policy) Inspect(filename, declaredType string, content []byte) (*Report, error) {
	name := model.NormalizeName(filename)
	ext := model.Extension(name)
	maxSize := p.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	allowed := p.Extensions
	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}

	err := validation.Errors{
		"filename":  validation.Validate(name, validation.Required, validation.RuneLength(1, 255)),
		"extension": validation.Validate(ext, validation.Required.Error("file has no extension"), validation.In(toAny(allowed)...).Error(fmt.Sprintf("extension %q is not allowed", ext))),
		"content":   validation.Validate(len(content), validation.Required.Error("file is empty"), validation.Max(int(maxSize)).Error(fmt.Sprintf("file exceeds %d MiB", maxSize>>20))),
	}.Filter()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	head := content
	if len(head) > 1024 {
		head = head[:1024]
	}
	if ext == ".pdf" && !bytes.HasPrefix(head, pdfMagic) {
		return nil, fmt.Errorf("%w: file does not look like a PDF", model.ErrValidation)
	}
	if zipBased[ext] && !bytes.HasPrefix(head, zipMagic) {
		return nil, fmt.Errorf("%w: %s file is not a valid ZIP container", model.ErrValidation, ext)
	}

	report := &Report{
		Name:      name,
		Extension: ext,
		MediaType: mediaType(ext, declaredType, head),
		Size:      int64(len(content)),
	}
	if ext == ".pdf" {
		if pages, err := pdfutil.PageCount(content); err == nil {
			report.Pages = pages
		}
	}
	return report, nil
}

func mediaType(ext, declared string, head []byte) string {
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if declared = strings.TrimSpace(declared); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(head)
}

// Allowed lists the accepted extensions, sorted.
func (p Policy) Allowed() []string {
	out := append([]string(nil), p.Extensions...)
	sort.Strings(out)
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
