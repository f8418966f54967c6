package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"smartqa-backend/internal/shared/storage/object"
)

const (
	MimePDF      = "application/pdf"
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
)

var ErrUnsupportedMime = errors.New("unsupported mime type")

// Supported reports whether mimeType (after normalization) can be extracted.
func Supported(mimeType, fileName string) bool {
	switch NormalizeMimeType(mimeType, fileName) {
	case MimePDF, MimePlain, MimeMarkdown:
		return true
	}
	return false
}

// ExtractText pulls text from a stored object.
func ExtractText(ctx context.Context, store object.ObjectStore, fileKey string, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: read: %w", fileKey, mimeType, err)
	}

	text, err := ExtractTextFromBytes(ctx, raw, mimeType, fileKey)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}
	return text, nil
}

// ExtractTextFromBytes extracts text from an in-memory payload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := NormalizeMimeType(mimeType, fileName)
	switch normalized {
	case MimePDF:
		return extractPDF(data)
	case MimePlain, MimeMarkdown:
		if !utf8.Valid(data) {
			return "", errors.New("text document is not valid utf-8")
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMime, normalized)
	}
}

// Truncate caps text at maxRunes runes.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// NormalizeMimeType strips parameters and falls back to the file extension
// for generic upload types.
func NormalizeMimeType(mimeType string, fileName string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case "text/x-markdown":
		return MimeMarkdown
	case "", "application/octet-stream", "binary/octet-stream":
	default:
		return clean
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".md", ".markdown":
		return MimeMarkdown
	case ".txt":
		return MimePlain
	default:
		return clean
	}
}
