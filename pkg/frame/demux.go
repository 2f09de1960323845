// SPDX-License-Identifier: GPL-2.0-or-later

// Package frame turns a raw capture burst from the camera into a single
// decodable JPEG frame.
package frame

import (
	"bytes"
	"errors"
)

// Wire format constants. These must match the device exactly.
const (
	// headerSize is the full length of a proprietary packet header.
	// Only the signature is examined, the rest is skipped.
	headerSize = 12

	// sanitizeByte is the device-specific non-standard marker byte that
	// follows 0xFF inside scan data. It is rewritten to the standard
	// stuffing byte 0x00 before the frame is handed to a decoder.
	sanitizeByte = 0x24
)

// headerSignature marks the start of a proprietary packet header.
var headerSignature = []byte{0xAA, 0xBB, 0x07}

// JPEG start and end of image markers.
var (
	soiMarker = []byte{0xFF, 0xD8}
	eoiMarker = []byte{0xFF, 0xD9}
)

// ErrNoPayload no payload could be extracted from the raw capture.
var ErrNoPayload = errors.New("no payload extracted from raw capture")

// Demultiplex splits a raw capture into proprietary packets and returns
// their payloads concatenated in order of appearance.
//
// The search for the header signature is a literal byte search with no
// escaping. Payload bytes that happen to match the signature are always
// treated as a new packet boundary. Known limitation.
//
// A signature with fewer than headerSize bytes remaining is a normal
// end-of-capture artifact. The fragment is discarded, truncated is set
// and whatever payload was accumulated so far is returned.
func Demultiplex(raw []byte) (payload []byte, truncated bool) {
	pos := 0
	for pos < len(raw) {
		h := bytes.Index(raw[pos:], headerSignature)
		if h == -1 {
			// No more packets.
			break
		}
		pos += h

		if pos+headerSize > len(raw) {
			truncated = true
			break
		}
		pos += headerSize

		// Payload runs to the next header or to the end of the capture.
		end := len(raw)
		if next := bytes.Index(raw[pos:], headerSignature); next != -1 {
			end = pos + next
		}

		payload = append(payload, raw[pos:end]...)
		pos = end
	}
	return payload, truncated
}
