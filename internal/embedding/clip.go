package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
)

// CLIP image preprocessing constants.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ClipConfig locates an ONNX CLIP image encoder.
type ClipConfig struct {
	// SharedLibrary is the onnxruntime library path. Empty uses the
	// platform default search.
	SharedLibrary string `json:"shared_library" mapstructure:"shared_library" yaml:"shared_library"`
	ModelPath     string `json:"model_path" mapstructure:"model_path" yaml:"model_path"`
	// ModelID names the model in cache keys; defaults to the model file name.
	ModelID    string `json:"model_id" mapstructure:"model_id" yaml:"model_id"`
	InputName  string `json:"input_name" mapstructure:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" mapstructure:"output_name" yaml:"output_name"`
	ImageSize  int    `json:"image_size" mapstructure:"image_size" yaml:"image_size"`
	Dim        int    `json:"dim" mapstructure:"dim" yaml:"dim"`
}

// DefaultClipConfig returns settings for a ViT-B/32 image encoder export.
func DefaultClipConfig() ClipConfig {
	return ClipConfig{
		InputName:  "pixel_values",
		OutputName: "image_embeds",
		ImageSize:  224,
		Dim:        512,
	}
}

var (
	ortMu    sync.Mutex
	ortUsers int
)

// initRuntime initializes the process-wide onnxruntime environment on first
// use and counts users so the last Close tears it down.
func initRuntime(lib string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortUsers == 0 && !ort.IsInitialized() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	ortUsers++
	return nil
}

func releaseRuntime() {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortUsers == 0 {
		return
	}
	ortUsers--
	if ortUsers == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// ClipEmbedder embeds images with a CLIP vision encoder through onnxruntime.
//
// Images are flattened onto white, resized and center-cropped to ImageSize,
// normalized with the CLIP mean and std, and fed as a 1×3×S×S float tensor.
type ClipEmbedder struct {
	cfg ClipConfig

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewClipEmbedder loads the model. A missing model file is a configuration
// error; a runtime that cannot load is a capability error.
func NewClipEmbedder(cfg ClipConfig) (*ClipEmbedder, error) {
	def := DefaultClipConfig()
	if cfg.InputName == "" {
		cfg.InputName = def.InputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = def.OutputName
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = def.ImageSize
	}
	if cfg.Dim <= 0 {
		cfg.Dim = def.Dim
	}
	if cfg.ModelPath == "" {
		return nil, apperr.Configf("clip model path is not set")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, apperr.Configf("clip model: %v", err)
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}

	if err := initRuntime(cfg.SharedLibrary); err != nil {
		return nil, apperr.Capability("onnxruntime", err)
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		releaseRuntime()
		return nil, apperr.Capability("onnxruntime", fmt.Errorf("load %s: %w", cfg.ModelPath, err))
	}
	return &ClipEmbedder{cfg: cfg, session: session}, nil
}

// ModelID implements index.Embedder.
func (c *ClipEmbedder) ModelID() string {
	return c.cfg.ModelID
}

// Embed implements index.Embedder.
func (c *ClipEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}
	size := c.cfg.ImageSize
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), clipTensor(img, size))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.cfg.Dim)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.New("clip embedder is closed")
	}
	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("clip inference: %w", err)
	}
	return cloneVector(output.GetData()), nil
}

// Close releases the session. The embedder cannot be used afterwards.
func (c *ClipEmbedder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	releaseRuntime()
	return err
}

// clipTensor converts img to a CHW float32 slice in CLIP input space.
func clipTensor(img image.Image, size int) []float32 {
	square := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := square.Pix[y*square.Stride:]
		for x := 0; x < size; x++ {
			p := row[x*4 : x*4+4]
			alpha := float32(p[3]) / 255
			for ch := 0; ch < 3; ch++ {
				v := (float32(p[ch])/255)*alpha + (1 - alpha)
				out[ch*plane+y*size+x] = (v - clipMean[ch]) / clipStd[ch]
			}
		}
	}
	return out
}
