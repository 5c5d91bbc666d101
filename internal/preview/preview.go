// Package preview renders frames for humans: ANSI blocks or plain text on a
// terminal, or a PNG file.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/toothrot/epdboot/devices/epd7in5b"
)

// ErrEmpty is returned for images without pixels.
var ErrEmpty = errors.New("preview: empty image")

// Stdout returns a writer for ANSI output and whether it is a terminal.
func Stdout() (io.Writer, bool) {
	fd := os.Stdout.Fd()
	return colorable.NewColorableStdout(), isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// scale shrinks img to cols columns. Terminal cells are about twice as tall
// as wide, so rows are halved.
func scale(img image.Image, cols int) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmpty
	}
	if cols <= 0 || cols > b.Dx() {
		cols = b.Dx()
	}
	rows := max(1, cols*b.Dy()/b.Dx()/2)
	return imaging.Resize(img, cols, rows, imaging.NearestNeighbor), nil
}

// Terminal writes img to w as rows of colored blocks.
func Terminal(w io.Writer, img image.Image, cols int) error {
	small, err := scale(img, cols)
	if err != nil {
		return err
	}
	b := small.Bounds()
	var buf bytes.Buffer
	for y := b.Min.Y; y < b.Max.Y; y++ {
		buf.WriteString("\033[0m")
		for x := b.Min.X; x < b.Max.X; x++ {
			buf.WriteString(ansi256.Default.Block(small.NRGBAAt(x, y)))
		}
		buf.WriteString("\033[0m\n")
	}
	_, err = buf.WriteTo(w)
	return err
}

var glyphs = map[epd7in5b.Color]byte{
	epd7in5b.White:     ' ',
	epd7in5b.Black:     '#',
	epd7in5b.Highlight: 'o',
}

// Text writes img to w with one character per panel color, for logs and
// pipes.
func Text(w io.Writer, img image.Image, cols int) error {
	small, err := scale(img, cols)
	if err != nil {
		return err
	}
	b := small.Bounds()
	var buf bytes.Buffer
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			buf.WriteByte(glyphs[epd7in5b.Model.Convert(small.At(x, y)).(epd7in5b.Color)])
		}
		buf.WriteByte('\n')
	}
	_, err = buf.WriteTo(w)
	return err
}

// SavePNG writes img to path as PNG whatever the file extension.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("imaging.Encode(%q) = %w", path, err)
	}
	return f.Close()
}
