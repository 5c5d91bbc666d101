// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

var (
	White     = Color{0}
	Black     = Color{1}
	Highlight = Color{2}

	// Model converts any color to the nearest panel color. Two-level
	// image1bit colors map lit pixels to White and dark pixels to Black.
	Model = color.ModelFunc(model)

	// Palette lists the panel colors in Color.C order.
	Palette = color.Palette{White, Black, Highlight}
)

// Color is one of the three inks of the panel.
type Color struct {
	// 0 white, 1 black, 2 highlight
	C uint8
}

func (c Color) RGBA() (r, g, b, a uint32) {
	switch c.C {
	case 0:
		return 0xffff, 0xffff, 0xffff, 0xffff
	case 1:
		return 0, 0, 0, 0xffff
	case 2:
		return 0xffff, 0, 0, 0xffff
	}
	return 0, 0, 0, 0
}

func (c Color) String() string {
	switch c.C {
	case 0:
		return "White"
	case 1:
		return "Black"
	case 2:
		return "Highlight"
	}
	return "Invalid"
}

// FromBit maps a binary pixel onto the panel by luminance: On is a lit pixel
// and becomes White, Off becomes Black. The epd-waveshare BinaryColor to
// TriColor conversion inverts this (On is Black), so bitmaps prepared for it
// show as a negative here.
func FromBit(b image1bit.Bit) Color {
	if b == image1bit.On {
		return White
	}
	return Black
}

func model(c color.Color) color.Color {
	return Palette.Convert(c)
}

func index(c color.Color) uint8 {
	switch cc := c.(type) {
	case Color:
		return cc.C
	case image1bit.Bit:
		return FromBit(cc).C
	}
	return uint8(Palette.Index(c))
}

// NewImage returns an all-white image.
func NewImage(r image.Rectangle) *Image {
	stride := (r.Dx() + 7) / 8
	bufSize := r.Dy() * stride
	return &Image{
		Black:     bytes.Repeat([]byte{0xff}, bufSize),
		Highlight: make([]byte, bufSize),
		Stride:    stride,
		Rect:      r,
	}
}

// Image is a framebuffer in the controller's RAM layout: one bit per pixel,
// most significant bit first, rows padded to whole bytes.
type Image struct {
	// Black pixels are 0, white and highlight pixels are 1.
	Black []byte
	// Highlight pixels are 1, all others 0.
	Highlight []byte
	// Stride is the number of bytes per row in both planes.
	Stride int
	Rect   image.Rectangle
}

func (i *Image) offset(x, y int) (int, byte) {
	x, y = x-i.Rect.Min.X, y-i.Rect.Min.Y
	return x/8 + y*i.Stride, byte(0x80 >> (uint32(x) % 8))
}

func (i *Image) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(i.Rect)) {
		return
	}
	px, bit := i.offset(x, y)
	switch index(c) {
	case 0:
		i.Black[px] |= bit
		i.Highlight[px] &^= bit
	case 1:
		i.Black[px] &^= bit
		i.Highlight[px] &^= bit
	case 2:
		i.Black[px] |= bit
		i.Highlight[px] |= bit
	}
}

func (i *Image) ColorModel() color.Model {
	return Model
}

func (i *Image) Bounds() image.Rectangle {
	return i.Rect
}

func (i *Image) At(x, y int) color.Color {
	return i.ColorAt(x, y)
}

// ColorAt is At without the interface conversion.
func (i *Image) ColorAt(x, y int) Color {
	if !(image.Point{x, y}).In(i.Rect) {
		return White
	}
	px, bit := i.offset(x, y)
	if i.Highlight[px]&bit != 0 {
		return Highlight
	}
	if i.Black[px]&bit != 0 {
		return White
	}
	return Black
}

var _ draw.Image = &Image{}
