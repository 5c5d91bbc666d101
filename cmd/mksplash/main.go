// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Binary mksplash renders the 1-bit splash bitmap embedded by epdboot.
//
//	go generate ./internal/asset
package main

import (
	"flag"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/makeworld-the-better-one/dither"
	"github.com/toothrot/epdboot/internal/asset"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
)

var (
	out    = flag.String("out", "splash.bmp", "Output BMP file.")
	width  = flag.Int("width", 800, "Bitmap width in pixels.")
	height = flag.Int("height", 480, "Bitmap height in pixels.")
	src    = flag.String("image", "", "Optional picture fitted inside the border instead of the ring.")
	text   = flag.String("text", "", "Optional caption under the ring.")
	rotate = flag.Float64("rotate", 0.0, "Picture rotation in degrees.")
)

func main() {
	flag.Parse()
	var pic image.Image
	if *src != "" {
		img, err := imaging.Open(*src)
		if err != nil {
			log.Fatal(err)
		}
		pic = img
	}
	face, err := fontFace(32)
	if err != nil {
		log.Fatal(err)
	}
	img := render(*width, *height, pic, *rotate, *text, face)
	if err := write(*out, img); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %dx%d bitmap to %s", *width, *height, *out)
}

// render draws the splash and dithers it to black and white.
func render(w, h int, pic image.Image, rot float64, caption string, face font.Face) *image.Paletted {
	ctx := gg.NewContext(w, h)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)

	cx, cy := float64(w)/2, float64(h)/2
	if pic != nil {
		r := imaging.Rotate(pic, rot, color.White)
		fit := imaging.Fit(r, w-24, h-24, imaging.Lanczos)
		ctx.DrawImageAnchored(fit, int(cx), int(cy), 0.5, 0.5)
	} else {
		ctx.SetLineWidth(12)
		ctx.DrawCircle(cx, cy, 176)
		ctx.Stroke()
		ctx.DrawCircle(cx, cy, 48)
		ctx.Fill()
		ctx.SetLineWidth(4)
		ctx.DrawLine(cx-120, cy, cx+120, cy)
		ctx.DrawLine(cx, cy-120, cx, cy+120)
		ctx.Stroke()
	}
	if caption != "" && face != nil {
		ctx.SetFontFace(face)
		ctx.DrawStringAnchored(caption, cx, float64(h)-30, 0.5, 0.5)
	}
	// Border, 6 pixels inside the edge.
	ctx.SetLineWidth(12)
	ctx.DrawRectangle(0, 0, float64(w), float64(h))
	ctx.Stroke()

	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = dither.FloydSteinberg
	d.Serpentine = true
	return d.DitherPaletted(ctx.Image())
}

func write(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mksplash-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := asset.Encode(tmp, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fontFace(size float64) (font.Face, error) {
	f, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
