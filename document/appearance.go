package document

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// appearanceStack is the four objects the Acrobat digital-signature
// appearance guideline asks for: an outer form wrapping a container form
// that composites an empty n0 background layer with an n2 content layer
// carrying the actual raster. Adobe readers rely on this exact
// form/container/n0/n2 shape to swap layers when re-rendering a signed
// field; a single flattened XObject (what the teacher ships) is not
// enough once a reader wants to regenerate n0 itself.
type appearanceStack struct {
	Form      *Object
	Container *Object
	N0        *Object
	N2        *Object
}

// buildAppearanceStack creates the four objects for rect (already in
// form space, width/height only) and the provided raster image. The
// image is decoded with the stdlib image package (registered for JPEG
// and PNG by this file's blank imports), matching the teacher's
// createImageXObject; the decode step itself remains the delegated,
// out-of-scope "image-embedding helper" per spec.md §1 — only the
// resulting raster bytes are this module's concern.
func (d *Document) buildAppearanceStack(rectWidth, rectHeight float64, imageData []byte, text string, textFont []byte) (*appearanceStack, error) {
	var n2 *Object
	var err error
	if len(imageData) > 0 {
		n2, err = d.buildImageLayer(rectWidth, rectHeight, imageData)
	} else {
		n2, err = d.buildTextLayer(rectWidth, rectHeight, text, textFont)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImage, err)
	}

	n0Dict := NewDict()
	n0Dict.Set("Type", Name("XObject"))
	n0Dict.Set("Subtype", Name("Form"))
	n0Dict.Set("FormType", Int(1))
	n0Dict.Set("BBox", Array(Real(0), Real(0), Real(rectWidth), Real(rectHeight)))
	n0 := d.CreateObject(DictValue(n0Dict), ObjectPlain)
	n0.Stream = []byte("% DSBlank\n")

	containerRes := NewDict()
	xobj := NewDict()
	xobj.Set("n0", n0.Reference())
	xobj.Set("n2", n2.Reference())
	containerRes.Set("XObject", DictValue(xobj))

	containerDict := NewDict()
	containerDict.Set("Type", Name("XObject"))
	containerDict.Set("Subtype", Name("Form"))
	containerDict.Set("FormType", Int(1))
	containerDict.Set("BBox", Array(Real(0), Real(0), Real(rectWidth), Real(rectHeight)))
	containerDict.Set("Resources", DictValue(containerRes))
	container := d.CreateObject(DictValue(containerDict), ObjectPlain)
	container.Stream = []byte("q 1 0 0 1 0 0 cm /n0 Do Q\nq 1 0 0 1 0 0 cm /n2 Do Q\n")

	formRes := NewDict()
	formXObj := NewDict()
	formXObj.Set("FRM", container.Reference())
	formRes.Set("XObject", DictValue(formXObj))

	group := NewDict()
	group.Set("S", Name("Transparency"))
	group.Set("CS", Name("DeviceRGB"))

	formDict := NewDict()
	formDict.Set("Type", Name("XObject"))
	formDict.Set("Subtype", Name("Form"))
	formDict.Set("FormType", Int(1))
	formDict.Set("BBox", Array(Real(0), Real(0), Real(rectWidth), Real(rectHeight)))
	formDict.Set("Group", DictValue(group))
	formDict.Set("Resources", DictValue(formRes))
	form := d.CreateObject(DictValue(formDict), ObjectPlain)
	form.Stream = []byte("/FRM Do\n")

	return &appearanceStack{Form: form, Container: container, N0: n0, N2: n2}, nil
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA:
		return true
	default:
		return false
	}
}

// buildImageLayer decodes imageData and produces the n2 XObject (plus,
// for PNG with an alpha channel, a soft-mask object referenced from it).
func (d *Document) buildImageLayer(rectWidth, rectHeight float64, imageData []byte) (*Object, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode appearance image: %w", err)
	}
	bounds := img.Bounds()
	width := bounds.Max.X - bounds.Min.X
	height := bounds.Max.Y - bounds.Min.Y

	imgDict := NewDict()
	imgDict.Set("Type", Name("XObject"))
	imgDict.Set("Subtype", Name("Image"))
	imgDict.Set("Width", Int(int64(width)))
	imgDict.Set("Height", Int(int64(height)))
	imgDict.Set("ColorSpace", Name("DeviceRGB"))
	imgDict.Set("BitsPerComponent", Int(8))

	var rgbStream []byte
	switch format {
	case "jpeg":
		imgDict.Set("Filter", Array(Name("DCTDecode")))
		rgbStream = imageData
	case "png":
		imgDict.Set("Filter", Name("FlateDecode"))
		var rgb, alpha bytes.Buffer
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, a := img.At(x, y).RGBA()
				rgb.WriteByte(byte(r >> 8))
				rgb.WriteByte(byte(g >> 8))
				rgb.WriteByte(byte(b >> 8))
				alpha.WriteByte(byte(a >> 8))
			}
		}
		compressedRGB, err := compressZlib(rgb.Bytes())
		if err != nil {
			return nil, err
		}
		rgbStream = compressedRGB

		if hasAlphaChannel(img) {
			compressedAlpha, err := compressZlib(alpha.Bytes())
			if err != nil {
				return nil, err
			}
			maskDict := NewDict()
			maskDict.Set("Type", Name("XObject"))
			maskDict.Set("Subtype", Name("Image"))
			maskDict.Set("Width", Int(int64(width)))
			maskDict.Set("Height", Int(int64(height)))
			maskDict.Set("ColorSpace", Name("DeviceGray"))
			maskDict.Set("BitsPerComponent", Int(8))
			maskDict.Set("Filter", Name("FlateDecode"))
			mask := d.CreateObject(DictValue(maskDict), ObjectPlain)
			mask.Stream = compressedAlpha
			imgDict.Set("SMask", mask.Reference())
		}
	default:
		return nil, fmt.Errorf("unsupported appearance image format: %s", format)
	}

	imgObj := d.CreateObject(DictValue(imgDict), ObjectPlain)
	imgObj.Stream = rgbStream

	n2Res := NewDict()
	n2XObj := NewDict()
	n2XObj.Set("Im1", imgObj.Reference())
	n2Res.Set("XObject", DictValue(n2XObj))

	n2Dict := NewDict()
	n2Dict.Set("Type", Name("XObject"))
	n2Dict.Set("Subtype", Name("Form"))
	n2Dict.Set("FormType", Int(1))
	n2Dict.Set("BBox", Array(Real(0), Real(0), Real(rectWidth), Real(rectHeight)))
	n2Dict.Set("Resources", DictValue(n2Res))
	n2 := d.CreateObject(DictValue(n2Dict), ObjectPlain)
	n2.Stream = []byte(fmt.Sprintf("q %f 0 0 %f 0 0 cm /Im1 Do Q\n", rectWidth, rectHeight))

	return n2, nil
}

// buildTextLayer renders text (typically the signer's name) centered in
// the appearance rectangle using a standard PDF font, the fallback n2
// layer for signatures that carry no raster. When textFont is non-nil it
// is parsed for accurate glyph widths; otherwise width is a flat
// per-character approximation, matching the teacher's Metrics.GetStringWidth
// fallback path.
func (d *Document) buildTextLayer(rectWidth, rectHeight float64, text string, textFont []byte) (*Object, error) {
	var metrics *fontMetrics
	if len(textFont) > 0 {
		m, err := parseTTFMetrics(textFont)
		if err != nil {
			return nil, fmt.Errorf("failed to parse appearance text font: %w", err)
		}
		metrics = m
	}

	const fontSize = 10.0
	width := metrics.stringWidth(text, fontSize)
	x := (rectWidth - width) / 2
	if x < 2 {
		x = 2
	}
	y := (rectHeight - fontSize) / 2

	fontRes := NewDict()
	helv := NewDict()
	helv.Set("Type", Name("Font"))
	helv.Set("Subtype", Name("Type1"))
	helv.Set("BaseFont", Name(fontHelvetica.psName()))
	helv.Set("Encoding", Name("WinAnsiEncoding"))
	fontObj := d.CreateObject(DictValue(helv), ObjectPlain)
	fontRes.Set("F1", fontObj.Reference())

	n2Res := NewDict()
	n2Res.Set("Font", DictValue(fontRes))

	n2Dict := NewDict()
	n2Dict.Set("Type", Name("XObject"))
	n2Dict.Set("Subtype", Name("Form"))
	n2Dict.Set("FormType", Int(1))
	n2Dict.Set("BBox", Array(Real(0), Real(0), Real(rectWidth), Real(rectHeight)))
	n2Dict.Set("Resources", DictValue(n2Res))
	n2 := d.CreateObject(DictValue(n2Dict), ObjectPlain)
	n2.Stream = []byte(fmt.Sprintf("q BT /F1 %g Tf 0 0 0 rg %g %g Td (%s) Tj ET Q\n",
		fontSize, x, y, escapeContentText(text)))

	return n2, nil
}

func escapeContentText(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '(' || b == ')' || b == '\\' {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	return string(out)
}
