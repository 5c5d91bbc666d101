// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/toothrot/epdboot/internal/asset"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func TestRender(t *testing.T) {
	face, err := fontFace(32)
	if err != nil {
		t.Fatalf("fontFace() = _, %v", err)
	}
	img := render(800, 480, nil, 0, "epdboot", face)
	path := filepath.Join(t.TempDir(), "splash.bmp")
	if err := write(path, img); err != nil {
		t.Fatalf("write() = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := asset.Decode(data)
	if err != nil {
		t.Fatalf("asset.Decode() = _, %v", err)
	}
	if got.Bounds() != image.Rect(0, 0, 800, 480) {
		t.Fatalf("Bounds() = %v", got.Bounds())
	}
	for _, c := range []struct {
		pt   image.Point
		want image1bit.Bit
	}{
		{pt: image.Point{1, 1}, want: image1bit.Off},
		{pt: image.Point{798, 478}, want: image1bit.Off},
		{pt: image.Point{400, 240}, want: image1bit.Off},
		{pt: image.Point{400, 240 - 176}, want: image1bit.Off},
		{pt: image.Point{100, 100}, want: image1bit.On},
		{pt: image.Point{700, 240}, want: image1bit.On},
	} {
		if b := got.BitAt(c.pt.X, c.pt.Y); b != c.want {
			t.Errorf("BitAt(%v) = %v, wanted %v", c.pt, b, c.want)
		}
	}
}

func TestRenderPicture(t *testing.T) {
	pic := imaging.New(40, 20, color.Black)
	img := render(100, 60, pic, 90, "", nil)
	if img.Bounds() != image.Rect(0, 0, 100, 60) {
		t.Fatalf("Bounds() = %v", img.Bounds())
	}
	// The rotated picture is fitted in the middle, away from the border.
	if r, _, _, _ := img.At(50, 30).RGBA(); r != 0 {
		t.Errorf("At(50, 30) = %v, wanted black", img.At(50, 30))
	}
	if r, _, _, _ := img.At(20, 30).RGBA(); r != 0xffff {
		t.Errorf("At(20, 30) = %v, wanted white", img.At(20, 30))
	}
}
