// Package asset holds the splash bitmap shown at boot.
//
// The bitmap is a 1 bit per pixel BMP so it stays small in the binary. It is
// regenerated with cmd/mksplash.
package asset

//go:generate go run ../../cmd/mksplash -out splash.bmp

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/bmp"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

//go:embed splash.bmp
var splash []byte

// ErrFormat is returned for data that is not a 1 bit per pixel BMP.
var ErrFormat = errors.New("asset: not a 1-bit BMP")

// SplashBMP returns a copy of the embedded bitmap file.
func SplashBMP() []byte {
	return bytes.Clone(splash)
}

// Splash decodes the embedded bitmap.
func Splash() (*image1bit.VerticalLSB, error) {
	return Decode(splash)
}

// Decode decodes a 1 bit per pixel BMP into a binary image. Palette entries
// are mapped to on or off by luminance.
func Decode(data []byte) (*image1bit.VerticalLSB, error) {
	if len(data) < 30 || string(data[:2]) != "BM" {
		return nil, ErrFormat
	}
	if bpp := binary.LittleEndian.Uint16(data[28:30]); bpp != 1 {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrFormat, bpp)
	}
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bmp.Decode() = %w", err)
	}
	r := img.Bounds()
	dst := image1bit.NewVerticalLSB(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetBit(x, y, image1bit.BitModel.Convert(img.At(x, y)).(image1bit.Bit))
		}
	}
	return dst, nil
}

const (
	fileHeaderLen = 14
	infoHeaderLen = 40
	paletteLen    = 2 * 4
	// 72 DPI in pixels per meter.
	pixelsPerMeter = 2835
)

// Encode writes img as a bottom-up 1 bit per pixel BMP with a black and
// white palette. Pixels are thresholded with image1bit.BitModel.
func Encode(w io.Writer, img image.Image) error {
	r := img.Bounds()
	if r.Empty() {
		return errors.New("asset: empty image")
	}
	stride := ((r.Dx() + 31) / 32) * 4
	pixLen := stride * r.Dy()
	offset := fileHeaderLen + infoHeaderLen + paletteLen

	le := binary.LittleEndian
	hdr := make([]byte, offset)
	copy(hdr, "BM")
	le.PutUint32(hdr[2:], uint32(offset+pixLen))
	le.PutUint32(hdr[10:], uint32(offset))
	le.PutUint32(hdr[14:], infoHeaderLen)
	le.PutUint32(hdr[18:], uint32(r.Dx()))
	le.PutUint32(hdr[22:], uint32(r.Dy()))
	le.PutUint16(hdr[26:], 1)
	le.PutUint16(hdr[28:], 1)
	le.PutUint32(hdr[34:], uint32(pixLen))
	le.PutUint32(hdr[38:], pixelsPerMeter)
	le.PutUint32(hdr[42:], pixelsPerMeter)
	le.PutUint32(hdr[46:], 2)
	le.PutUint32(hdr[50:], 2)
	// Palette, BGRX: index 0 black, index 1 white.
	copy(hdr[fileHeaderLen+infoHeaderLen+4:], []byte{0xff, 0xff, 0xff, 0x00})
	var buf bytes.Buffer
	buf.Grow(offset + pixLen)
	buf.Write(hdr)

	row := make([]byte, stride)
	for y := r.Max.Y - 1; y >= r.Min.Y; y-- {
		clear(row)
		for x := r.Min.X; x < r.Max.X; x++ {
			if image1bit.BitModel.Convert(img.At(x, y)).(image1bit.Bit) == image1bit.On {
				i := x - r.Min.X
				row[i/8] |= 0x80 >> (i % 8)
			}
		}
		buf.Write(row)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
