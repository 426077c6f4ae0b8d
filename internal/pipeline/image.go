package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"inference-filter/internal/engine"
	"inference-filter/internal/shared"
	"inference-filter/internal/tensor"

	"golang.org/x/image/draw"
)

const DefaultMaxImagePixels = 40_000_000

type imagePipeline struct {
	task     Task
	handle   *engine.Handle
	opts     Options
	channels int
	reducer  reducer

	geoMu sync.Mutex
	geo   *tensor.ImageGeometry
}

func (p *imagePipeline) Task() Task { return p.task }

func (p *imagePipeline) Classify(ctx context.Context, in Input) (*PredictionResult, error) {
	data, err := decodeContent(in.Data, in.ContentEncoding, p.opts.MaxDecodedBytes)
	if err != nil {
		return nil, err
	}
	img, err := p.decode(data)
	if err != nil {
		return nil, err
	}

	eng, err := p.handle.Acquire()
	if err != nil {
		return nil, err
	}
	defer p.handle.Release()

	geo, err := p.geometry(eng)
	if err != nil {
		return nil, shared.ShapeMismatchError(err)
	}
	input, err := Preprocess(img, geo, p.opts.Mean, p.opts.Std)
	if err != nil {
		return nil, shared.ShapeMismatchError(err)
	}
	if declared := eng.Inputs()[0].Shape; !input.Shape.Matches(declared) {
		return nil, shared.ShapeMismatchError(fmt.Errorf("prepared input %s does not fit model input %s", input.Shape, declared))
	}
	return run(ctx, eng, []tensor.Tensor{input}, p.reducer)
}

func (p *imagePipeline) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, shared.DecodeError(errors.New("empty image"))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, shared.DecodeError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, shared.DecodeError(fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height))
	}
	if cfg.Width*cfg.Height > p.opts.MaxImagePixels {
		return nil, shared.DecodeError(fmt.Errorf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, p.opts.MaxImagePixels))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, shared.DecodeError(err)
	}
	return img, nil
}

// geometry resolves the model's input layout once per pipeline.
func (p *imagePipeline) geometry(eng engine.Engine) (tensor.ImageGeometry, error) {
	p.geoMu.Lock()
	defer p.geoMu.Unlock()
	if p.geo != nil {
		return *p.geo, nil
	}
	ins := eng.Inputs()
	if len(ins) != 1 {
		return tensor.ImageGeometry{}, fmt.Errorf("image model must take one input, declares %d", len(ins))
	}
	if ins[0].DType != tensor.Float32 {
		return tensor.ImageGeometry{}, fmt.Errorf("image input %s is %s, want float32", ins[0].Name, ins[0].DType)
	}
	geo, err := tensor.InferGeometry(ins[0].Shape, p.channels, p.opts.Layout, p.opts.Height, p.opts.Width)
	if err != nil {
		return tensor.ImageGeometry{}, err
	}
	p.geo = &geo
	return geo, nil
}

// dropAlpha makes every pixel opaque while keeping its colour, so fully
// transparent pixels are not flattened to black by premultiplication.
func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// Preprocess resizes img to the geometry with nearest-neighbor sampling,
// scales samples from 0-255 to 0.0-1.0, applies optional per-channel
// mean/std, and lays the result out as a batch-of-one tensor.
func Preprocess(img image.Image, geo tensor.ImageGeometry, mean, std []float32) (tensor.Tensor, error) {
	rect := image.Rect(0, 0, geo.Width, geo.Height)
	data := make([]float32, geo.Height*geo.Width*geo.Channels)

	img = dropAlpha(img)
	var pix []uint8
	var stride, step int
	switch geo.Channels {
	case 1:
		dst := image.NewGray(rect)
		draw.NearestNeighbor.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
		pix, stride, step = dst.Pix, dst.Stride, 1
	case 3:
		dst := image.NewRGBA(rect)
		draw.NearestNeighbor.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
		pix, stride, step = dst.Pix, dst.Stride, 4
	default:
		return tensor.Tensor{}, fmt.Errorf("unsupported channel count %d", geo.Channels)
	}

	for y := 0; y < geo.Height; y++ {
		for x := 0; x < geo.Width; x++ {
			off := y*stride + x*step
			for c := 0; c < geo.Channels; c++ {
				v := float32(pix[off+c]) / 255
				if len(mean) > 0 {
					v -= mean[c]
				}
				if len(std) > 0 {
					v /= std[c]
				}
				data[geo.Index(y, x, c)] = v
			}
		}
	}
	return tensor.NewFloat32(geo.Shape(), data)
}
