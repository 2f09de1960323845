// SPDX-License-Identifier: GPL-2.0-or-later

package decode

import (
	"image"
	"io"

	"github.com/gen2brain/jpegli"
)

// jpegDecode binds the jpegli library. It reports failure through a plain
// error return, callers never see the library's internal failure mechanism.
func jpegDecode(r io.Reader) (image.Image, error) {
	return jpegli.DecodeWithOptions(r, &jpegli.DecodingOptions{
		FancyUpsampling: true,
		BlockSmoothing:  true,
	})
}
