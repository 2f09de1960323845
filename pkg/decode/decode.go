// SPDX-License-Identifier: GPL-2.0-or-later

// Package decode turns a sanitized JPEG frame into a pixel buffer.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
)

// ErrDecodeFailed the decoder rejected the frame.
var ErrDecodeFailed = errors.New("decoder rejected frame")

// Channels per pixel after conversion to RGB.
const rgbChannels = 3

// Image is a decoded frame in a single contiguous RGB buffer.
type Image struct {
	Width    int
	Height   int
	Channels int
	Stride   int
	Pix      []uint8
}

type decodeFunc func(io.Reader) (image.Image, error)

// Decoder decodes JPEG frames.
type Decoder struct {
	decode decodeFunc
}

// NewDecoder returns new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{decode: jpegDecode}
}

// Decode decodes a single JPEG frame into an RGB pixel buffer. Any failure
// reported by the underlying library is wrapped in ErrDecodeFailed.
func (d *Decoder) Decode(frame []byte) (*Image, error) {
	img, err := d.decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	bounds := img.Bounds()
	rgb := NewRGB24(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgb, rgb.Rect, img, bounds.Min, draw.Src)

	return &Image{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Channels: rgbChannels,
		Stride:   rgb.Stride,
		Pix:      rgb.Pix,
	}, nil
}

// WritePNG encodes the image as PNG.
func (i *Image) WritePNG(w io.Writer) error {
	rgb := &RGB24{
		Pix:    i.Pix,
		Stride: i.Stride,
		Rect:   image.Rect(0, 0, i.Width, i.Height),
	}
	if err := png.Encode(w, rgb); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
