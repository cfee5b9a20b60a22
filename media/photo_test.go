package media

import (
	"bytes"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h)); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePhotos(t *testing.T) {
	a := encodePNG(t, 120, 100)
	b := encodePNG(t, 130, 100)

	photos, rejections := DecodePhotos([][]byte{a, []byte("not an image"), b, a, nil})

	if len(photos) != 2 {
		t.Fatalf("decoded %d photos, want 2", len(photos))
	}
	if photos[0].Index != 0 || photos[1].Index != 2 {
		t.Fatalf("indices = %d, %d; want 0, 2", photos[0].Index, photos[1].Index)
	}
	if w := photos[1].Image.Bounds().Dx(); w != 130 {
		t.Fatalf("second photo width = %d, want 130", w)
	}

	want := map[int]Reason{1: ReasonUndecodable, 3: ReasonDuplicatePhoto, 4: ReasonUndecodable}
	if len(rejections) != len(want) {
		t.Fatalf("got %d rejections, want %d: %v", len(rejections), len(want), rejections)
	}
	for _, r := range rejections {
		if want[r.Index] != r.Diagnostic.Reason {
			t.Errorf("photo %d: reason %q, want %q", r.Index, r.Diagnostic.Reason, want[r.Index])
		}
	}
}

func TestApplyOrientationRotates(t *testing.T) {
	img := solidImage(40, 10)
	if b := applyOrientation(img, 6).Bounds(); b.Dx() != 10 || b.Dy() != 40 {
		t.Fatalf("orientation 6 gave %dx%d, want 10x40", b.Dx(), b.Dy())
	}
	if b := applyOrientation(img, 1).Bounds(); b.Dx() != 40 {
		t.Fatalf("orientation 1 changed the image")
	}
}

func TestIsRasterImage(t *testing.T) {
	for name, want := range map[string]bool{"a.JPG": true, "b.png": true, "c.txt": false, "noext": false} {
		if got := IsRasterImage(name); got != want {
			t.Errorf("IsRasterImage(%q) = %v, want %v", name, got, want)
		}
	}
}
