package floorplan

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
)

// DefaultAnnotatedPrefix marks a rendered derivative of a floor image
const DefaultAnnotatedPrefix = "annotated-"

// Versioner maps a floor's current filename to its pristine source and its
// annotated destination inside Dir.
type Versioner struct {
	Dir    string
	Prefix string
}

// NewVersioner returns a Versioner rooted at dir using prefix, or the default prefix
func NewVersioner(dir, prefix string) Versioner {
	if prefix == "" {
		prefix = DefaultAnnotatedPrefix
	}
	return Versioner{Dir: dir, Prefix: prefix}
}

// SourceName strips every leading annotated prefix from name
func (v Versioner) SourceName(name string) string {
	base := filepath.Base(name)
	if v.Prefix == "" {
		return base
	}
	for strings.HasPrefix(base, v.Prefix) {
		base = strings.TrimPrefix(base, v.Prefix)
	}
	return base
}

// DestName returns the annotated filename, carrying the prefix exactly once
func (v Versioner) DestName(name string) string {
	return v.Prefix + v.SourceName(name)
}

// SourcePath is the on-disk path of the original image
func (v Versioner) SourcePath(name string) string {
	return filepath.Join(v.Dir, v.SourceName(name))
}

// DestPath is the on-disk path of the annotated image
func (v Versioner) DestPath(name string) string {
	return filepath.Join(v.Dir, v.DestName(name))
}

// LoadImage decodes the image at path without opening it for writing
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrImageIO, path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrImageIO, path, err)
	}
	return img, nil
}

// SaveImage encodes img by the extension of path and replaces path atomically
func SaveImage(path string, img image.Image) error {
	if err := WriteAtomic(path, func(f io.Writer) error {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg":
			return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
		default:
			return png.Encode(f, img)
		}
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrImageIO, err)
	}
	return nil
}

// WriteAtomic writes through a temp file in the target directory then renames it
// over path, so readers never see a partially written file.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}
