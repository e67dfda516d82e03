package driver

// Format is a texel or vertex attribute format.
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatR16Float
	FormatRGBA16Float
	FormatR32Uint
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD16Unorm
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
)

var formatNames = [...]string{
	FormatUndefined:      "undefined",
	FormatR8Unorm:        "r8unorm",
	FormatRG8Unorm:       "rg8unorm",
	FormatRGBA8Unorm:     "rgba8unorm",
	FormatRGBA8Srgb:      "rgba8srgb",
	FormatBGRA8Unorm:     "bgra8unorm",
	FormatBGRA8Srgb:      "bgra8srgb",
	FormatR16Float:       "r16float",
	FormatRGBA16Float:    "rgba16float",
	FormatR32Uint:        "r32uint",
	FormatR32Float:       "r32float",
	FormatRG32Float:      "rg32float",
	FormatRGB32Float:     "rgb32float",
	FormatRGBA32Float:    "rgba32float",
	FormatD16Unorm:       "d16unorm",
	FormatD32Float:       "d32float",
	FormatD24UnormS8Uint: "d24unorm-s8uint",
	FormatD32FloatS8Uint: "d32float-s8uint",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "invalid"
	}
	return formatNames[f]
}

// IsDepth reports whether f has a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Float, FormatD24UnormS8Uint, FormatD32FloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f has a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

// Aspect is the set of image aspects addressed by a view or barrier.
type Aspect int

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

// Aspect derives the aspect mask of an image in format f.
func (f Format) Aspect() Aspect {
	switch {
	case f.HasStencil():
		return AspectDepth | AspectStencil
	case f.IsDepth():
		return AspectDepth
	}
	return AspectColor
}

// Size is the number of bytes per texel.
func (f Format) Size() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Float, FormatD16Unorm:
		return 2
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb,
		FormatR32Uint, FormatR32Float, FormatD32Float, FormatD24UnormS8Uint:
		return 4
	case FormatRGBA16Float, FormatRG32Float, FormatD32FloatS8Uint:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	}
	return 0
}
