package document

import (
	"encoding/hex"
	"io"
	"math/rand"

	"golang.org/x/text/encoding/unicode"
)

const widgetNameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomWidgetSuffix draws 8 alphanumeric characters from src, the
// injectable source of randomness the determinism requirement (§5) asks
// for: a test can hand in a fixed-seed rand.Rand to get a reproducible
// widget name.
func randomWidgetSuffix(src io.Reader) (string, error) {
	if src == nil {
		src = rand.New(rand.NewSource(1))
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = widgetNameAlphabet[int(b)%len(widgetNameAlphabet)]
	}
	return string(out), nil
}

// utf16BEWithBOM encodes s as UTF-16BE with a leading byte-order mark,
// the form PDF widget /T titles and form field values use when they
// carry non-ASCII text. golang.org/x/text/encoding/unicode replaces a
// hand-rolled BOM-prefixed big-endian encode/decode.
func utf16BEWithBOM(s string) ([]byte, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	return enc.NewEncoder().Bytes([]byte(s))
}

// widgetTitleValue builds the Value a widget's /T (or /V) entry takes:
// a hex string carrying s encoded as UTF-16BE with a leading BOM, the
// form PDF text strings use to round-trip outside Latin-1. Falls back
// to a plain literal string on an encode error (s containing a rune the
// encoder rejects), rather than failing widget construction outright.
func widgetTitleValue(s string) Value {
	b, err := utf16BEWithBOM(s)
	if err != nil {
		return String(s)
	}
	return HexString(hex.EncodeToString(b))
}
