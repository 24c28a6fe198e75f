// Package media prepares evidence photos for upload.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1600
	DefaultJPEGQuality  = 85
)

var ErrUnsupportedImage = errors.New("unsupported image")

type Options struct {
	MaxDimension int
	Quality      int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultJPEGQuality
	}
	return o
}

type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Orientation int
	Resized     bool
}

// Orientation returns the EXIF orientation tag, 1 when absent or unreadable.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Orient rewrites img so it displays upright for the given EXIF orientation.
func Orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if orientation >= 5 {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// FitWithin scales (w,h) to fit inside max on both sides, keeping aspect ratio.
func FitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := int(float64(h) * float64(max) / float64(w))
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := int(float64(w) * float64(max) / float64(h))
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

// Compress decodes a photo, applies EXIF orientation, downscales it and
// re-encodes it as JPEG.
func Compress(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}

	orientation := Orientation(data)
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	img = Orient(img, orientation)

	b := img.Bounds()
	nw, nh := FitWithin(b.Dx(), b.Dy(), opts.MaxDimension)
	resized := nw != b.Dx() || nh != b.Dy()

	// Already small, upright JPEGs are kept byte for byte.
	if !resized && orientation == 1 && format == "jpeg" {
		return &Result{Data: data, ContentType: "image/jpeg", Width: nw, Height: nh, Orientation: orientation}, nil
	}

	var out image.Image = img
	if resized {
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Result{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Width:       nw,
		Height:      nh,
		Orientation: orientation,
		Resized:     resized,
	}, nil
}

// CompressWithTimeout bounds Compress by timeout. The caller decides what to
// do with the original bytes on error.
func CompressWithTimeout(ctx context.Context, data []byte, opts Options, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return Compress(data, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := Compress(data, opts)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DetectContentType sniffs the upload, defaulting to application/octet-stream.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

func IsImageContentType(ct string) bool {
	switch ct {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	default:
		return false
	}
}
