package media

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedImage is returned for extensions the codec cannot re-encode.
var ErrUnsupportedImage = errors.New("unsupported image format")

// ImageCodec re-encodes still images in place.
type ImageCodec interface {
	// Available reports whether the codec can be used at all.
	Available() bool
	// Supports reports whether path has an extension the codec handles.
	Supports(path string) bool
	// OptimizeFile rewrites path with metadata stripped, the colour model
	// normalized and the longest side capped.
	OptimizeFile(path string) (ImageReport, error)
}

// ImageReport describes what OptimizeFile did to one image.
type ImageReport struct {
	Width       int
	Height      int
	Resized     bool
	Rotated     bool
	Skipped     bool // left untouched, e.g. animated GIF
	BytesBefore int64
	BytesAfter  int64
}

var optimizableExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".tif": true,
}

// StdCodec is the pure-Go ImageCodec backed by the standard image packages
// and golang.org/x/image.
type StdCodec struct {
	MaxDimension int
	JPEGQuality  int
}

// NewStdCodec returns a StdCodec, substituting defaults for zero values.
func NewStdCodec(maxDimension, jpegQuality int) StdCodec {
	if maxDimension <= 0 {
		maxDimension = 5000
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return StdCodec{MaxDimension: maxDimension, JPEGQuality: jpegQuality}
}

func (StdCodec) Available() bool { return true }

func (StdCodec) Supports(path string) bool { return optimizableExts[Ext(path)] }

// OptimizeFile decodes path, applies EXIF orientation, flattens alpha and
// palette models onto white, downscales when either side exceeds
// MaxDimension and writes the result back in the same format. The new
// content goes to a temp sibling first and replaces path by rename.
func (c StdCodec) OptimizeFile(path string) (ImageReport, error) {
	var rep ImageReport
	ext := Ext(path)
	if !optimizableExts[ext] {
		return rep, fmt.Errorf("%s: %w", ext, ErrUnsupportedImage)
	}

	f, err := os.Open(path)
	if err != nil {
		return rep, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return rep, err
	}
	rep.BytesBefore = info.Size()

	if ext == ".gif" {
		frames, err := gifFrameCount(f)
		if err != nil {
			f.Close()
			return rep, fmt.Errorf("decode gif: %w", err)
		}
		if frames > 1 {
			f.Close()
			rep.Skipped = true
			rep.BytesAfter = rep.BytesBefore
			return rep, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return rep, err
		}
	}

	img, err := decodeImage(ext, f)
	if err != nil {
		f.Close()
		return rep, fmt.Errorf("decode %s: %w", ext, err)
	}

	orientation := 1
	if ext == ".jpg" || ext == ".jpeg" || ext == ".tif" || ext == ".tiff" {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			orientation = readOrientation(f)
		}
	}
	f.Close()

	if orientation > 1 {
		img = applyOrientation(img, orientation)
		rep.Rotated = true
	}
	img = flatten(img)
	img, rep.Resized = resizeFit(img, c.MaxDimension)
	rep.Width, rep.Height = img.Bounds().Dx(), img.Bounds().Dy()

	// The temp name carries no media extension so a leftover from a killed
	// run is never taken for an image.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".orgest-img-*.orgest-tmp")
	if err != nil {
		return rep, err
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rep, err
	}
	if err := c.encode(ext, tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return rep, fmt.Errorf("encode %s: %w", ext, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return rep, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return rep, err
	}
	if info, err := os.Stat(path); err == nil {
		rep.BytesAfter = info.Size()
	}
	return rep, nil
}

func (c StdCodec) encode(ext string, w io.Writer, img image.Image) error {
	switch ext {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: c.JPEGQuality})
	case ".png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return ErrUnsupportedImage
	}
}

// decodeImage decodes an image from r using the decoder appropriate for ext.
func decodeImage(ext string, r io.Reader) (image.Image, error) {
	switch ext {
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".gif":
		return gif.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	case ".tif", ".tiff":
		return tiff.Decode(r)
	default:
		img, _, err := image.Decode(r)
		return img, err
	}
}

func gifFrameCount(r io.Reader) (int, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return 0, err
	}
	return len(g.Image), nil
}

// flatten returns img unchanged when it is already an opaque RGB-like
// model, otherwise composites it onto white as RGBA.
func flatten(img image.Image) image.Image {
	switch img.(type) {
	case *image.RGBA, *image.RGBA64, *image.YCbCr, *image.Gray, *image.Gray16:
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			return img
		}
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// resizeFit scales src so its longest side is at most maxSide, preserving
// the aspect ratio. Images that already fit are returned as-is.
func resizeFit(src image.Image, maxSide int) (image.Image, bool) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return src, false
	}

	longest := w
	if h > longest {
		longest = h
	}
	scale := float64(maxSide) / float64(longest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, true
}
