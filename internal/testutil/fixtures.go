package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// MP3Frame returns a single silent MPEG1 Layer3 frame (128kbps, 44100Hz).
func MP3Frame() []byte {
	frame := make([]byte, 417)
	frame[0] = 0xff
	frame[1] = 0xfb
	frame[2] = 0x90
	frame[3] = 0x00
	return frame
}

// WriteMP3 writes an untagged MP3 frame to dir/name and returns the path.
func WriteMP3(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, MP3Frame(), 0o600); err != nil {
		t.Fatalf("failed to write test mp3: %v", err)
	}
	return path
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: 200, A: 255})
		}
	}
	return img
}

// PNGImage returns a w x h PNG.
func PNGImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEGImage returns a w x h JPEG.
func JPEGImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}
