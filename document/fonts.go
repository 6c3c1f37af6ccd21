package document

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// standardFont names one of the fourteen PDF standard fonts, available in
// every reader without embedding.
type standardFont int

const (
	fontHelvetica standardFont = iota
	fontHelveticaBold
)

func (f standardFont) psName() string {
	switch f {
	case fontHelveticaBold:
		return "Helvetica-Bold"
	default:
		return "Helvetica"
	}
}

// fontMetrics holds glyph advance widths, either parsed out of a real
// TrueType font (glyphWidths populated, from sfnt) or left empty, in which
// case stringWidth falls back to a flat per-character approximation for
// one of the standard fonts.
type fontMetrics struct {
	unitsPerEm  int
	glyphWidths map[rune]int
}

// parseTTFMetrics parses data and extracts advance widths for code points
// 32 through 255, the way the widget-text fallback layer measures a signer's name
// before centering it in the appearance rectangle.
func parseTTFMetrics(data []byte) (*fontMetrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}
	unitsPerEm := f.UnitsPerEm()

	glyphWidths := make(map[rune]int)
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(unitsPerEm) << 6

	for r := rune(32); r <= rune(255); r++ {
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			continue
		}
		advance, err := f.GlyphAdvance(&buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		glyphWidths[r] = int(advance >> 6)
	}

	return &fontMetrics{unitsPerEm: int(unitsPerEm), glyphWidths: glyphWidths}, nil
}

// stringWidth returns text's width in points at fontSize. A nil receiver
// (no TrueType metrics available) falls back to a flat per-character
// approximation tuned for Helvetica.
func (m *fontMetrics) stringWidth(text string, fontSize float64) float64 {
	if m == nil || m.unitsPerEm == 0 {
		return float64(len(text)) * fontSize * 0.5
	}
	var total int
	for _, r := range text {
		if w, ok := m.glyphWidths[r]; ok {
			total += w
		} else {
			total += m.unitsPerEm / 2
		}
	}
	return (float64(total) / float64(m.unitsPerEm)) * fontSize
}
