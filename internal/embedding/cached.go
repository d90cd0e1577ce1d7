package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"image"
	"sync"

	"github.com/ironsheep/icon-autolabel/internal/index"
)

// CachedEmbedder memoizes another embedder by image content.
//
// Sliding-window proposals often produce identical crops (blank canvas,
// repeated icons); each distinct crop is embedded once. The cache is bounded
// by MaxEntries; when full it is reset rather than evicting entry by entry.
type CachedEmbedder struct {
	inner      index.Embedder
	maxEntries int

	mu    sync.RWMutex
	cache map[string][]float32
	hits  int
}

// NewCachedEmbedder wraps inner. maxEntries <= 0 means unbounded.
func NewCachedEmbedder(inner index.Embedder, maxEntries int) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		maxEntries: maxEntries,
		cache:      make(map[string][]float32),
	}
}

// ModelID implements index.Embedder. Caching does not change the vectors, so
// the inner model ID is reported unchanged.
func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

// Embed implements index.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	key := contentKey(img)

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cloneVector(vec), nil
	}

	vec, err := c.inner.Embed(ctx, img)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.maxEntries > 0 && len(c.cache) >= c.maxEntries {
		c.cache = make(map[string][]float32)
	}
	c.cache[key] = cloneVector(vec)
	c.mu.Unlock()
	return vec, nil
}

// Stats returns the number of cached vectors and cache hits so far.
func (c *CachedEmbedder) Stats() (entries, hits int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache), c.hits
}

// contentKey hashes the image size and RGBA pixels. The position of the
// bounds is ignored so equal crops from different places share a key.
func contentKey(img image.Image) string {
	b := img.Bounds()
	h := sha1.New()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(b.Dx()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(b.Dy()))
	h.Write(buf[:])
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			binary.LittleEndian.PutUint16(buf[0:], uint16(r))
			binary.LittleEndian.PutUint16(buf[2:], uint16(g))
			binary.LittleEndian.PutUint16(buf[4:], uint16(bl))
			binary.LittleEndian.PutUint16(buf[6:], uint16(a))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
