// Package annotate draws detection overlays onto JPEG frames and handles
// re-encoding frames that grew past the datagram payload budget.
package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/halcyoncraft/sightline/pkg/provider/detect"
)

const (
	// Quality is the JPEG quality used for annotated frames.
	Quality = 80

	boxThickness = 3
	labelPadding = 2
)

// palette cycles per detection so adjacent boxes stay distinguishable.
var palette = []color.RGBA{
	{R: 0xE6, G: 0x3B, B: 0x2E, A: 0xFF}, // red
	{R: 0x2E, G: 0xCC, B: 0x40, A: 0xFF}, // green
	{R: 0x2E, G: 0x6B, B: 0xE6, A: 0xFF}, // blue
	{R: 0xE6, G: 0xB8, B: 0x2E, A: 0xFF}, // yellow
	{R: 0xB8, G: 0x2E, B: 0xE6, A: 0xFF}, // purple
}

// Draw decodes frame, draws one rectangle per detection, and re-encodes the
// result as JPEG. Detections whose boxes fall entirely outside the image are
// skipped. With no detections the frame is returned unchanged without a
// decode/encode round trip.
func Draw(frame []byte, detections []detect.Detection) ([]byte, error) {
	if len(detections) == 0 {
		return frame, nil
	}

	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("annotate: decode frame: %w", err)
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	for i, d := range detections {
		c := palette[i%len(palette)]
		drawBox(img, d.Box, c)
		drawLabel(img, d, c)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("annotate: encode frame: %w", err)
	}
	return out.Bytes(), nil
}

// drawBox draws an axis-aligned rectangle outline clipped to the image.
func drawBox(img *image.RGBA, box detect.Box, c color.RGBA) {
	r := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < boxThickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setClipped(img, x, r.Min.Y+t, c)
			setClipped(img, x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setClipped(img, r.Min.X+t, y, c)
			setClipped(img, r.Max.X-1-t, y, c)
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel renders "<label> <confidence>" on a filled strip anchored to the
// top edge of the detection box. The strip sits above the box when there is
// room, otherwise inside it.
func drawLabel(img *image.RGBA, d detect.Detection, c color.RGBA) {
	text := strings.TrimSpace(fmt.Sprintf("%s %.2f", d.Label, d.Confidence))
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil() + 2*labelPadding
	h := face.Height + 2*labelPadding

	x := d.Box.X
	y := d.Box.Y - h
	if y < img.Bounds().Min.Y {
		y = d.Box.Y
	}

	strip := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
	if strip.Empty() {
		return
	}
	draw.Draw(img, strip, image.NewUniform(c), image.Point{}, draw.Src)

	(&font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x+labelPadding, y+labelPadding+face.Ascent),
	}).DrawString(text)
}

// ShrinkToFit re-encodes frame at progressively lower JPEG quality until it
// fits in maxBytes. Quality starts at startQuality and drops by step per
// attempt, never below minQuality. Returns an error when even the lowest
// quality does not fit.
func ShrinkToFit(frame []byte, maxBytes, startQuality, minQuality, step int) ([]byte, error) {
	if len(frame) <= maxBytes {
		return frame, nil
	}
	if step <= 0 {
		step = 10
	}

	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("annotate: decode oversized frame: %w", err)
	}

	for q := startQuality; q >= minQuality; q -= step {
		var out bytes.Buffer
		if err := jpeg.Encode(&out, src, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("annotate: re-encode at quality %d: %w", q, err)
		}
		if out.Len() <= maxBytes {
			return out.Bytes(), nil
		}
	}
	return nil, errors.New("annotate: frame does not fit even at minimum quality")
}
