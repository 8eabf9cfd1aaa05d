package field

import "fmt"

// Format identifies the storage layout of a field texture on the backend.
type Format uint8

const (
	FormatInvalid Format = iota
	R16F
	RG16F
	RGBA16F
	R32F
	RG32F
	RGBA32F
)

var formatNames = [...]string{
	FormatInvalid: "invalid",
	R16F:          "R16F",
	RG16F:         "RG16F",
	RGBA16F:       "RGBA16F",
	R32F:          "R32F",
	RG32F:         "RG32F",
	RGBA32F:       "RGBA32F",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Channels reports how many float channels a texel of this format stores.
func (f Format) Channels() int {
	switch f {
	case R16F, R32F:
		return 1
	case RG16F, RG32F:
		return 2
	case RGBA16F, RGBA32F:
		return 4
	}
	return 0
}

// Half reports whether the format stores IEEE 754 binary16 channels.
func (f Format) Half() bool {
	return f == R16F || f == RG16F || f == RGBA16F
}

// BytesPerTexel returns the storage footprint of a single texel.
func (f Format) BytesPerTexel() int {
	if f.Half() {
		return f.Channels() * 2
	}
	return f.Channels() * 4
}

var (
	halfChain  = []Format{R16F, RG16F, RGBA16F}
	floatChain = []Format{R32F, RG32F, RGBA32F}
)

// FallbackChain lists the formats tried, in order, for a field with the given
// component count. Narrow half-float targets come first and widen until one
// fits; 32-bit targets are the last resort.
func FallbackChain(components int) []Format {
	chain := make([]Format, 0, 6)
	for _, group := range [][]Format{halfChain, floatChain} {
		for _, f := range group {
			if f.Channels() >= components {
				chain = append(chain, f)
			}
		}
	}
	return chain
}
