package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smartqa-backend/internal/shared/storage/object/local"
)

func TestNormalizeMimeType(t *testing.T) {
	cases := []struct {
		mime, name, want string
	}{
		{"text/plain; charset=utf-8", "notes.txt", MimePlain},
		{"application/octet-stream", "flow.md", MimeMarkdown},
		{"", "brief.PDF", MimePDF},
		{"text/x-markdown", "x", MimeMarkdown},
		{"image/png", "shot.png", "image/png"},
	}
	for _, tc := range cases {
		if got := NormalizeMimeType(tc.mime, tc.name); got != tc.want {
			t.Fatalf("NormalizeMimeType(%q, %q) = %q, want %q", tc.mime, tc.name, got, tc.want)
		}
	}
}

func TestExtractTextFromBytesPlainAndMarkdown(t *testing.T) {
	got, err := ExtractTextFromBytes(context.Background(), []byte("  # Login\nEnter email  \n"), MimeMarkdown, "login.md")
	if err != nil {
		t.Fatalf("ExtractTextFromBytes: %v", err)
	}
	if got != "# Login\nEnter email" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractTextFromBytesRejectsUnsupported(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", "shot.png")
	if !errors.Is(err, ErrUnsupportedMime) {
		t.Fatalf("expected ErrUnsupportedMime, got %v", err)
	}
	if Supported("image/png", "shot.png") {
		t.Fatalf("png must not be supported")
	}
	if !Supported("application/pdf", "a.pdf") {
		t.Fatalf("pdf must be supported")
	}
}

func TestExtractTextFromStore(t *testing.T) {
	store := local.New(t.TempDir())
	ctx := context.Background()
	if _, err := store.Put(ctx, "documents/o/a/readme.txt", MimePlain, strings.NewReader("checkout flow")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := ExtractText(ctx, store, "documents/o/a/readme.txt", MimePlain)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "checkout flow" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("zero cap must keep text, got %q", got)
	}
}
