// SPDX-License-Identifier: GPL-2.0-or-later

package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// ScanMarkers returns the offset of every JPEG start and end of image
// marker in the buffer. Diagnostic only, the extraction path uses just the
// first pair.
func ScanMarkers(buf []byte) (soi []int, eoi []int) {
	for pos := 0; ; {
		i := bytes.Index(buf[pos:], soiMarker)
		if i == -1 {
			break
		}
		soi = append(soi, pos+i)
		pos += i + len(soiMarker)
	}
	for pos := 0; ; {
		i := bytes.Index(buf[pos:], eoiMarker)
		if i == -1 {
			break
		}
		eoi = append(eoi, pos+i)
		pos += i + len(eoiMarker)
	}
	return soi, eoi
}

// Segment is a single JPEG marker segment.
type Segment struct {
	Marker byte
	Offset int
	Length int // Payload length including the two length bytes, zero for standalone markers.
}

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01
)

// WalkSegments walks the marker segments of an extracted frame up to the
// start of scan. Entropy-coded data after the SOS marker is not walked.
// Used to log the frame structure at debug level.
func WalkSegments(f []byte) ([]Segment, error) {
	br := bitio.NewReader(bytes.NewReader(f))
	offset := 0

	readByte := func() (byte, error) {
		b, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		offset++
		return byte(b), nil
	}

	var segments []Segment
	for {
		b, err := readByte()
		if err != nil {
			if err == io.EOF && len(segments) > 0 {
				return segments, nil
			}
			return nil, fmt.Errorf("read marker: %w", err)
		}
		if b != 0xFF {
			return nil, fmt.Errorf("expected marker prefix at offset %v, got 0x%02X", offset-1, b)
		}

		marker, err := readByte()
		if err != nil {
			return nil, fmt.Errorf("read marker: %w", err)
		}

		seg := Segment{Marker: marker, Offset: offset - 2}

		// Standalone markers carry no length field.
		standalone := marker == markerSOI || marker == markerEOI ||
			marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7)
		if !standalone {
			length, err := br.ReadBits(16)
			if err != nil {
				return nil, fmt.Errorf("read segment length: %w", err)
			}
			offset += 2
			if length < 2 {
				return nil, fmt.Errorf("invalid segment length %v at offset %v", length, seg.Offset)
			}
			seg.Length = int(length)

			// Skip the segment payload.
			for i := 0; i < int(length)-2; i++ {
				if _, err := readByte(); err != nil {
					return nil, fmt.Errorf("skip segment payload: %w", err)
				}
			}
		}

		segments = append(segments, seg)

		// Entropy-coded data follows the start of scan.
		if marker == markerSOS {
			return segments, nil
		}
	}
}
