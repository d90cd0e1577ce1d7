package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// SupportedExtensions lists the file extensions the loader will pick up when
// scanning directories. Matching is case-insensitive.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// IsSupported reports whether path has an extension the loader can decode.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImageCache provides thread-safe caching of decoded images keyed by path.
//
// The reference icons are decoded once per run and shared read-only by all
// scoring workers; the cache is what makes that cheap. Input diagrams are
// usually loaded with Open instead, since each is processed once.
//
// An optional transform is applied once at load time, so the cache can hold
// preprocessed images (for example square-padded icons) instead of raw ones.
//
// # Example Usage
//
//	cache := imaging.NewImageCache(nil)
//	img, err := cache.Load("/path/to/icon.png")
//	if err != nil {
//	    return err
//	}
type ImageCache struct {
	mu        sync.RWMutex
	images    map[string]image.Image
	transform func(image.Image) image.Image
}

// NewImageCache creates an empty cache. transform may be nil.
func NewImageCache(transform func(image.Image) image.Image) *ImageCache {
	return &ImageCache{
		images:    make(map[string]image.Image),
		transform: transform,
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// The image is cached using the exact path string provided. Different paths to
// the same file (relative vs absolute) result in separate entries. Two
// goroutines racing on the same uncached path may both decode it; the last
// writer wins, and both receive equivalent images.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := Open(path)
	if err != nil {
		return nil, err
	}
	if c.transform != nil {
		img = c.transform(img)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Open decodes the image at path without caching it.
//
// Supported formats are PNG, JPEG, GIF, BMP, TIFF and WebP. Zero-sized images
// are rejected since no region can be proposed on them.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}
	return img, nil
}
