package media

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/crypto/blake2b"
)

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// DecodedPhoto is an uploaded photo that decoded successfully. Index is the
// position of the photo in the original upload.
type DecodedPhoto struct {
	Index int
	Image image.Image
}

// DecodePhoto decodes raw image bytes and applies the EXIF orientation so the
// face is upright before detection.
func DecodePhoto(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "photo", Reason: "empty file"}
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Field: "photo", Reason: err.Error()}
	}
	return applyOrientation(img, exifOrientation(data)), nil
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil || tag == nil {
		return 1
	}
	val, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return val
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// DecodePhotos decodes a batch of uploads. Undecodable photos and
// byte-identical duplicates are returned as rejections instead of errors.
func DecodePhotos(raw [][]byte) ([]DecodedPhoto, []PhotoRejection) {
	var (
		photos     []DecodedPhoto
		rejections []PhotoRejection
	)
	seen := make(map[[blake2b.Size256]byte]int, len(raw))

	for i, data := range raw {
		digest := blake2b.Sum256(data)
		if first, dup := seen[digest]; dup {
			rejections = append(rejections, PhotoRejection{
				Index:      i,
				Diagnostic: Diagnostic{Reason: ReasonDuplicatePhoto, Detail: fmt.Sprintf("same bytes as photo %d", first+1)},
			})
			continue
		}
		seen[digest] = i

		img, err := DecodePhoto(data)
		if err != nil {
			rejections = append(rejections, PhotoRejection{
				Index:      i,
				Diagnostic: Diagnostic{Reason: ReasonUndecodable, Detail: err.Error()},
			})
			continue
		}
		photos = append(photos, DecodedPhoto{Index: i, Image: img})
	}

	return photos, rejections
}
