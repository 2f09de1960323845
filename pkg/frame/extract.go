// SPDX-License-Identifier: GPL-2.0-or-later

package frame

import (
	"bytes"
	"errors"
)

// ErrStartMarkerNotFound no JPEG start of image marker in the payload.
var ErrStartMarkerNotFound = errors.New("jpeg start of image marker (FF D8) not found in payload")

// ErrEndMarkerNotFound no JPEG end of image marker after the start marker.
var ErrEndMarkerNotFound = errors.New("jpeg end of image marker (FF D9) not found after start marker")

// Extract returns the first JPEG frame in the payload, sanitized.
// The frame runs from the first start of image marker to the first end of
// image marker after it, inclusive of both markers. At most one frame is
// extracted, any further JPEG data in the payload is ignored.
func Extract(payload []byte) ([]byte, error) {
	start := bytes.Index(payload, soiMarker)
	if start == -1 {
		return nil, ErrStartMarkerNotFound
	}

	end := bytes.Index(payload[start:], eoiMarker)
	if end == -1 {
		return nil, ErrEndMarkerNotFound
	}
	end += start + len(eoiMarker)

	f := make([]byte, end-start)
	copy(f, payload[start:end])

	return Sanitize(f), nil
}

// Sanitize rewrites every FF 24 byte pair in the frame to FF 00, the
// standard JPEG escape for a literal FF inside entropy-coded data. The
// scan is a single left-to-right pass over every adjacent pair, so a
// sequence like FF 24 24 only rewrites the first 24. Rewriting never
// creates a new match, applying Sanitize twice equals applying it once.
//
// The frame is modified in place and returned for convenience.
func Sanitize(f []byte) []byte {
	for i := 0; i+1 < len(f); i++ {
		if f[i] == 0xFF && f[i+1] == sanitizeByte {
			f[i+1] = 0x00
		}
	}
	return f
}
