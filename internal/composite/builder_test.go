package composite

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestBuildGridDimensions(t *testing.T) {
	b := NewBuilder(Options{ThumbSize: 200, Columns: 5})
	inputs := make([][]byte, 7)
	for i := range inputs {
		inputs[i] = pngBytes(t, color.RGBA{R: uint8(30 * i), A: 255}, 64, 48)
	}
	composite, mapping, err := b.Build(inputs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(mapping) != 7 {
		t.Fatalf("mapping length = %d, want 7", len(mapping))
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(composite))
	if err != nil {
		t.Fatalf("decode composite: %v", err)
	}
	// 7 thumbs in 5 columns -> 2 rows.
	if cfg.Width != 1000 || cfg.Height != 400 {
		t.Fatalf("composite = %dx%d, want 1000x400", cfg.Width, cfg.Height)
	}
}

func TestBuildSkipsUndecodableImages(t *testing.T) {
	b := NewBuilder(Options{})
	inputs := [][]byte{
		pngBytes(t, color.White, 32, 32),
		[]byte("not an image"),
		pngBytes(t, color.Black, 32, 32),
	}
	_, mapping, err := b.Build(inputs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(mapping) != 2 || mapping[0] != 0 || mapping[1] != 2 {
		t.Fatalf("mapping = %v, want [0 2]", mapping)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(Options{ThumbSize: 100, Columns: 3, JPEGQuality: 85})
	inputs := [][]byte{
		pngBytes(t, color.RGBA{R: 200, A: 255}, 50, 80),
		pngBytes(t, color.RGBA{G: 200, A: 255}, 80, 50),
	}
	first, _, err := b.Build(inputs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, _, err := b.Build(inputs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("composite output is not deterministic")
	}
}

func TestBuildFailsWithNoDecodableImages(t *testing.T) {
	b := NewBuilder(Options{})
	_, _, err := b.Build([][]byte{[]byte("junk"), nil})
	if !errors.Is(err, ErrNoDecodableImages) {
		t.Fatalf("err = %v, want ErrNoDecodableImages", err)
	}
}
