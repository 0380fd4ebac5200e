package raster

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// RotateClockwise decodes a PNG, turns it clockwise by degrees and encodes it
// again. The canvas grows to fit, so 90 and 270 swap width and height.
// degrees must be a multiple of 90; 0 returns the input unchanged.
func RotateClockwise(data []byte, degrees int) ([]byte, error) {
	d := ((degrees % 360) + 360) % 360
	if d%90 != 0 {
		return nil, fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", degrees)
	}
	if d == 0 {
		return data, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rotate(src, d), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// rotate turns img clockwise. imaging rotates counter-clockwise.
func rotate(img image.Image, degrees int) *image.NRGBA {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	default:
		return imaging.Rotate90(img)
	}
}
