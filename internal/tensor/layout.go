package tensor

import (
	"fmt"
	"strings"
)

// Layout is the axis order of a 4-dimensional image input.
type Layout int

const (
	LayoutAuto Layout = iota
	NHWC
	NCHW
)

func (l Layout) String() string {
	switch l {
	case NHWC:
		return "nhwc"
	case NCHW:
		return "nchw"
	}
	return "auto"
}

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LayoutAuto, nil
	case "nhwc":
		return NHWC, nil
	case "nchw":
		return NCHW, nil
	}
	return LayoutAuto, fmt.Errorf("unknown tensor layout %q", s)
}

// ImageGeometry describes the fixed input resolution of an image model.
type ImageGeometry struct {
	Layout   Layout
	Height   int
	Width    int
	Channels int
}

// Shape returns the batch-of-one tensor shape in the geometry's axis order.
func (g ImageGeometry) Shape() Shape {
	if g.Layout == NCHW {
		return Shape{1, int64(g.Channels), int64(g.Height), int64(g.Width)}
	}
	return Shape{1, int64(g.Height), int64(g.Width), int64(g.Channels)}
}

// Index returns the flat offset of sample (y, x, c).
func (g ImageGeometry) Index(y, x, c int) int {
	if g.Layout == NCHW {
		return c*g.Height*g.Width + y*g.Width + x
	}
	return (y*g.Width+x)*g.Channels + c
}

// InferGeometry resolves the layout and resolution of a declared 4-d input
// for an image with the given channel count. An explicit layout wins; with
// LayoutAuto the channel axis is located by matching channels against axis 1
// and axis 3. Dynamic spatial dimensions are filled from fallbackH/fallbackW.
func InferGeometry(declared Shape, channels int, layout Layout, fallbackH, fallbackW int) (ImageGeometry, error) {
	if len(declared) != 4 {
		return ImageGeometry{}, fmt.Errorf("image input must be 4-dimensional, model declares %s", declared)
	}
	ch := int64(channels)
	if layout == LayoutAuto {
		switch {
		case declared[3] == ch && declared[1] != ch:
			layout = NHWC
		case declared[1] == ch && declared[3] != ch:
			layout = NCHW
		case declared[1] == ch && declared[3] == ch:
			return ImageGeometry{}, fmt.Errorf("ambiguous layout for %s, set the input layout explicitly", declared)
		default:
			return ImageGeometry{}, fmt.Errorf("model input %s has no %d-channel axis", declared, channels)
		}
	}

	var c, h, w int64
	if layout == NCHW {
		c, h, w = declared[1], declared[2], declared[3]
	} else {
		h, w, c = declared[1], declared[2], declared[3]
	}
	if c >= 0 && c != ch {
		return ImageGeometry{}, fmt.Errorf("model input %s expects %d channels, pipeline produces %d", declared, c, channels)
	}
	g := ImageGeometry{Layout: layout, Height: int(h), Width: int(w), Channels: channels}
	if h < 0 {
		g.Height = fallbackH
	}
	if w < 0 {
		g.Width = fallbackW
	}
	if g.Height <= 0 || g.Width <= 0 {
		return ImageGeometry{}, fmt.Errorf("model input %s has dynamic resolution and no size is configured", declared)
	}
	return g, nil
}
