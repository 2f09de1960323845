// SPDX-License-Identifier: GPL-2.0-or-later

package decode

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRGB24(t *testing.T) {
	t.Run("setAndAt", func(t *testing.T) {
		p := NewRGB24(image.Rect(0, 0, 2, 2))

		p.Set(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

		require.Equal(t, RGB{R: 10, G: 20, B: 30}, p.RGB24At(1, 0))
		require.Equal(t, RGB{}, p.RGB24At(0, 0))
	})
	t.Run("pixOffset", func(t *testing.T) {
		p := NewRGB24(image.Rect(0, 0, 4, 4))

		require.Equal(t, 0, p.PixOffset(0, 0))
		require.Equal(t, 3, p.PixOffset(1, 0))
		require.Equal(t, 12, p.PixOffset(0, 1))
	})
	t.Run("outOfBounds", func(t *testing.T) {
		p := NewRGB24(image.Rect(0, 0, 1, 1))

		p.Set(5, 5, color.RGBA{R: 1, A: 255})
		require.Equal(t, RGB{}, p.RGB24At(5, 5))
	})
	t.Run("bufferSize", func(t *testing.T) {
		p := NewRGB24(image.Rect(0, 0, 640, 480))

		require.Len(t, p.Pix, 640*480*3)
		require.Equal(t, 640*3, p.Stride)
	})
}

func TestRGBColor(t *testing.T) {
	r, g, b, a := RGB{R: 255, G: 0, B: 128}.RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0), g)
	require.Equal(t, uint32(0x8080), b)
	require.Equal(t, uint32(0xffff), a)
}

func TestMul3NonNeg(t *testing.T) {
	require.Equal(t, 24, mul3NonNeg(2, 3, 4))
	require.Equal(t, -1, mul3NonNeg(-1, 3, 4))
	require.Equal(t, -1, mul3NonNeg(1<<40, 1<<40, 1))
}
