// Package document holds the immutable input value type accepted by the
// processing core together with its validation rules.
package document

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/thoas/go-funk"

	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeTIFF = "image/tiff"
	MimePDF  = "application/pdf"

	// MaxPayloadBytes is the hard input size limit. Anything larger is a
	// validation failure, not a timeout.
	MaxPayloadBytes = 50 << 20
)

var supportedMimeTypes = []string{MimeJPEG, MimePNG, MimeTIFF, MimePDF}

// Document is an immutable byte payload with its declared MIME type. The
// core never mutates or retains the payload beyond a single run.
type Document struct {
	Data     []byte
	MimeType string
}

func New(data []byte, mimeType string) Document {
	return Document{Data: data, MimeType: mimeType}
}

// ContentHash returns the hex SHA-256 digest of the exact payload bytes.
// It is the exact-match cache key.
func (d Document) ContentHash() string {
	sum := sha256.Sum256(d.Data)
	return hex.EncodeToString(sum[:])
}

func (d Document) Size() int { return len(d.Data) }

// SupportedMimeType reports whether the core accepts the given MIME type.
func SupportedMimeType(mimeType string) bool {
	return funk.ContainsString(supportedMimeTypes, mimeType)
}

// Validate enforces the input contract: non-empty payload, supported MIME
// type, payload under the size limit.
func (d Document) Validate() error {
	if len(d.Data) == 0 {
		return errdefs.NewValidationError("document payload is empty")
	}
	if !SupportedMimeType(d.MimeType) {
		return errdefs.NewValidationError("unsupported mime type: %s", d.MimeType)
	}
	if len(d.Data) > MaxPayloadBytes {
		return errdefs.NewValidationError("document payload exceeds %d bytes: %d", MaxPayloadBytes, len(d.Data))
	}
	return nil
}
