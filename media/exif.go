package media

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrExifBounds marks an EXIF block whose tags point outside the block.
// goexif allocates from the declared counts, so such blocks never reach it.
var ErrExifBounds = errors.New("exif: tag exceeds segment bounds")

var errNoExif = errors.New("exif: no exif segment")

const (
	maxJPEGSegments = 256
	maxExifIFDs     = 16

	tagExifIFD    = 0x8769
	tagGPSIFD     = 0x8825
	tagInteropIFD = 0xA005
)

var exifHeader = []byte("Exif\x00\x00")

// tiffTypeSize is the width in bytes of one value of each TIFF field type
var tiffTypeSize = map[uint16]uint64{
	1: 1, 2: 1, 6: 1, 7: 1,
	3: 2, 8: 2,
	4: 4, 9: 4, 11: 4, 13: 4,
	5: 8, 10: 8, 12: 8,
}

// readJPEGExif returns the TIFF payload of the first EXIF APP1 segment. It
// stops at the start of scan, so only the header of the file is read and the
// payload is bounded by the 16-bit segment length.
func readJPEGExif(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != 0xD8 {
		return nil, errNoExif
	}

	for i := 0; i < maxJPEGSegments; i++ {
		marker, err := nextMarker(br)
		if err != nil {
			return nil, err
		}
		switch {
		case marker == 0xD9 || marker == 0xDA:
			return nil, errNoExif
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("exif: truncated segment: %w", err)
		}
		length := int(binary.BigEndian.Uint16(lenBuf[:]))
		if length < 2 {
			return nil, fmt.Errorf("exif: invalid segment length %d", length)
		}
		payloadLen := length - 2

		if marker != 0xE1 {
			if _, err := br.Discard(payloadLen); err != nil {
				return nil, fmt.Errorf("exif: truncated segment: %w", err)
			}
			continue
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("exif: truncated APP1 segment: %w", err)
		}
		if bytes.HasPrefix(payload, exifHeader) {
			return payload[len(exifHeader):], nil
		}
	}
	return nil, errNoExif
}

// nextMarker skips fill bytes and returns the next marker code
func nextMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, errNoExif
	}
	if b != 0xFF {
		return 0, fmt.Errorf("exif: expected marker, got 0x%02x", b)
	}
	for {
		b, err = br.ReadByte()
		if err != nil {
			return 0, errNoExif
		}
		if b != 0xFF {
			return b, nil
		}
	}
}

// validateTIFF walks every IFD reachable from the header, including the
// EXIF, GPS and interop sub-IFDs, and checks that each tag's declared data
// fits inside data.
func validateTIFF(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: header too short", ErrExifBounds)
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Errorf("exif: unknown byte order %q", data[:2])
	}
	if order.Uint16(data[2:4]) != 42 {
		return fmt.Errorf("exif: bad tiff magic")
	}

	size := uint64(len(data))
	queue := []uint32{order.Uint32(data[4:8])}
	seen := make(map[uint32]bool)

	for len(queue) > 0 {
		off := queue[0]
		queue = queue[1:]
		if off == 0 || seen[off] {
			continue
		}
		seen[off] = true
		if len(seen) > maxExifIFDs {
			return fmt.Errorf("exif: more than %d IFDs", maxExifIFDs)
		}

		start := uint64(off)
		if start+2 > size {
			return fmt.Errorf("%w: IFD at %d", ErrExifBounds, off)
		}
		n := uint64(order.Uint16(data[start:]))
		if start+2+n*12+4 > size {
			return fmt.Errorf("%w: IFD at %d with %d entries", ErrExifBounds, off, n)
		}

		for i := uint64(0); i < n; i++ {
			e := data[start+2+i*12 : start+2+(i+1)*12]
			tag := order.Uint16(e[0:2])
			typ := order.Uint16(e[2:4])
			count := uint64(order.Uint32(e[4:8]))

			width, ok := tiffTypeSize[typ]
			if !ok {
				return fmt.Errorf("exif: tag 0x%04x has unknown type %d", tag, typ)
			}
			total := count * width
			if total > size {
				return fmt.Errorf("%w: tag 0x%04x declares %d bytes", ErrExifBounds, tag, total)
			}
			if total > 4 {
				valOff := uint64(order.Uint32(e[8:12]))
				if valOff+total > size {
					return fmt.Errorf("%w: tag 0x%04x value at %d", ErrExifBounds, tag, valOff)
				}
			}

			switch tag {
			case tagExifIFD, tagGPSIFD, tagInteropIFD:
				if count != 1 || width != 4 {
					return fmt.Errorf("%w: sub-IFD pointer 0x%04x has count %d", ErrExifBounds, tag, count)
				}
				queue = append(queue, order.Uint32(e[8:12]))
			}
		}
		queue = append(queue, order.Uint32(data[start+2+n*12:]))
	}
	return nil
}

// decodeExif parses a validated TIFF block with goexif. A panic inside the
// decoder is reported as an error.
func decodeExif(tiff []byte) (x *exif.Exif, err error) {
	if err := validateTIFF(tiff); err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			x, err = nil, fmt.Errorf("exif: decoder panic: %v", rec)
		}
	}()
	return exif.Decode(bytes.NewReader(tiff))
}

// readExif extracts and decodes the EXIF block of a JPEG stream
func readExif(r io.Reader) (*exif.Exif, error) {
	tiff, err := readJPEGExif(r)
	if err != nil {
		return nil, err
	}
	return decodeExif(tiff)
}
