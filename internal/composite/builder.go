// Package composite assembles an actor's training images into a single grid
// thumbnail for submission to the vision evaluator.
package composite

import (
	"bytes"
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"actorset/internal/infra"
)

// Options tunes the grid layout.
type Options struct {
	// ThumbSize is the edge length of each cell in pixels.
	ThumbSize int
	// Columns is the fixed column count; incomplete rows are padded with
	// empty cells.
	Columns int
	// JPEGQuality is the encoder quality for the final composite.
	JPEGQuality int
	Logger      *infra.Logger
}

// Builder lays out fixed-size thumbnails in a grid, left to right, top to
// bottom. The output is deterministic for a given input sequence.
type Builder struct {
	thumbSize int
	columns   int
	quality   int
	logger    *infra.Logger
}

// ErrNoDecodableImages indicates that every input failed to decode.
var ErrNoDecodableImages = errors.New("composite: no decodable images")

// NewBuilder constructs a Builder with sane defaults for zero-value options.
func NewBuilder(opts Options) *Builder {
	thumb := opts.ThumbSize
	if thumb <= 0 {
		thumb = 200
	}
	columns := opts.Columns
	if columns <= 0 {
		columns = 5
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Builder{thumbSize: thumb, columns: columns, quality: quality, logger: opts.Logger}
}

// Build decodes the ordered input images, thumbnails them, and returns the
// JPEG composite plus a mapping from composite ordinal (0-based, drawing
// order) to input ordinal. Images that fail to decode are skipped and logged;
// the composite is still produced from the rest.
func (b *Builder) Build(images [][]byte) ([]byte, []int, error) {
	mapping := make([]int, 0, len(images))
	thumbs := make([]image.Image, 0, len(images))
	for i, raw := range images {
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			if b.logger != nil {
				b.logger.Warn().Err(err).Int("input_ordinal", i).Msg("composite: skipping undecodable image")
			}
			continue
		}
		thumbs = append(thumbs, imaging.Fill(img, b.thumbSize, b.thumbSize, imaging.Center, imaging.Lanczos))
		mapping = append(mapping, i)
	}
	if len(thumbs) == 0 {
		return nil, nil, ErrNoDecodableImages
	}

	rows := (len(thumbs) + b.columns - 1) / b.columns
	canvas := imaging.New(b.columns*b.thumbSize, rows*b.thumbSize, color.White)
	for i, thumb := range thumbs {
		x := (i % b.columns) * b.thumbSize
		y := (i / b.columns) * b.thumbSize
		canvas = imaging.Paste(canvas, thumb, image.Pt(x, y))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(b.quality)); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), mapping, nil
}

// GridSize returns the pixel dimensions a composite of n thumbnails will have.
func (b *Builder) GridSize(n int) (width, height int) {
	if n <= 0 {
		return 0, 0
	}
	rows := (n + b.columns - 1) / b.columns
	return b.columns * b.thumbSize, rows * b.thumbSize
}
