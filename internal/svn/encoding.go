package svn

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// minDetectConfidence is the chardet confidence (0-100) below which a guess is ignored.
const minDetectConfidence = 80

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding guesses the charset of b. Order: byte order mark, valid
// UTF-8, statistical detection, fallback, then utf-8.
func DetectEncoding(b []byte, fallback string) string {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return "utf-8"
	case bytes.HasPrefix(b, bomUTF16LE):
		return "utf-16le"
	case bytes.HasPrefix(b, bomUTF16BE):
		return "utf-16be"
	}
	if utf8.Valid(b) {
		return "utf-8"
	}
	if result, err := chardet.NewTextDetector().DetectBest(b); err == nil && result.Confidence >= minDetectConfidence {
		return strings.ToLower(result.Charset)
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return strings.ToLower(fallback)
	}
	return "utf-8"
}

// Decode converts b from the named charset to a Go string. A UTF-8 BOM is dropped.
func Decode(b []byte, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(bytes.TrimPrefix(b, bomUTF8)), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		// chardet reports names like "GB-18030" that the WHATWG index spells without dashes.
		enc, err = htmlindex.Get(strings.ReplaceAll(name, "-", ""))
		if err != nil {
			return "", fmt.Errorf("unknown encoding %q: %w", name, err)
		}
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}
