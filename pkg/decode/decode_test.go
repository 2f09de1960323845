// SPDX-License-Identifier: GPL-2.0-or-later

package decode

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("working", func(t *testing.T) {
		src := image.NewRGBA(image.Rect(0, 0, 4, 2))
		for x := 0; x < 4; x++ {
			for y := 0; y < 2; y++ {
				src.Set(x, y, color.RGBA{R: 200, A: 255})
			}
		}

		buf := new(bytes.Buffer)
		err := jpeg.Encode(buf, src, &jpeg.Options{Quality: 100})
		require.NoError(t, err)

		d := NewDecoder()
		img, err := d.Decode(buf.Bytes())
		require.NoError(t, err)

		require.Equal(t, 4, img.Width)
		require.Equal(t, 2, img.Height)
		require.Equal(t, 3, img.Channels)
		require.Equal(t, 12, img.Stride)
		require.Len(t, img.Pix, 4*2*3)
	})
	t.Run("decodeErr", func(t *testing.T) {
		d := &Decoder{decode: func(io.Reader) (image.Image, error) {
			return nil, errors.New("mock")
		}}

		_, err := d.Decode([]byte{0xFF, 0xD8, 0xFF, 0xD9})
		require.ErrorIs(t, err, ErrDecodeFailed)
	})
	t.Run("garbage", func(t *testing.T) {
		d := NewDecoder()
		_, err := d.Decode([]byte{1, 2, 3, 4})
		require.ErrorIs(t, err, ErrDecodeFailed)
	})
	t.Run("offsetBounds", func(t *testing.T) {
		// Source images with a non-zero origin land at (0,0).
		d := &Decoder{decode: func(io.Reader) (image.Image, error) {
			src := image.NewRGBA(image.Rect(2, 2, 5, 4))
			src.Set(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
			return src, nil
		}}

		img, err := d.Decode(nil)
		require.NoError(t, err)
		require.Equal(t, 3, img.Width)
		require.Equal(t, 2, img.Height)
		require.Equal(t, []uint8{10, 20, 30}, img.Pix[:3])
	})
}

func TestWritePNG(t *testing.T) {
	img := &Image{
		Width:    2,
		Height:   1,
		Channels: 3,
		Stride:   6,
		Pix:      []uint8{255, 0, 0, 0, 255, 0},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, img.WritePNG(buf))

	decoded, err := png.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Bounds().Dx())
	require.Equal(t, 1, decoded.Bounds().Dy())

	r, g, b, _ := decoded.At(0, 0).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0), g)
	require.Equal(t, uint32(0), b)
}
