package carousel

import (
	"math"
	"strconv"
	"strings"
)

// Size is a pixel rectangle.
type Size struct {
	Width  int
	Height int
}

// Hints are the configured target dimensions. Zero means unset.
type Hints struct {
	Width  int
	Height int
}

func (h Hints) IsZero() bool {
	return h.Width <= 0 && h.Height <= 0
}

// ParseHints reads the thumbnail_size setting: "WxH", "Wx", "xH", "0" or "".
// Unparseable parts read as unset.
func ParseHints(s string) Hints {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return Hints{}
	}
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return Hints{}
	}
	return Hints{Width: parsePositive(parts[0]), Height: parsePositive(parts[1])}
}

func parsePositive(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ComputeSize applies the container sizing policy to an image's natural size.
//
//	H set, W unset: height H, width round(aspect*H)
//	W set, H unset: width W, height round(aspect*W)
//	both set:       H x W, aspect ignored
//	neither:        natural size
//
// The second row multiplies by the aspect ratio rather than dividing; it is
// kept as the screens have always rendered it.
func ComputeSize(natural Size, h Hints) Size {
	w, ht := max(h.Width, 0), max(h.Height, 0)
	switch {
	case ht > 0 && w == 0:
		return Size{Width: roundPx(aspect(natural) * float64(ht)), Height: ht}
	case ht == 0 && w > 0:
		return Size{Width: w, Height: roundPx(aspect(natural) * float64(w))}
	case ht > 0 && w > 0:
		return Size{Width: w, Height: ht}
	default:
		return natural
	}
}

func aspect(natural Size) float64 {
	if natural.Width <= 0 || natural.Height <= 0 {
		return 0
	}
	return float64(natural.Width) / float64(natural.Height)
}

func roundPx(v float64) int {
	return int(math.Round(v))
}
