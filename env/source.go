package env

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// FrameSource yields ordered keyframes at their native dimensions. The
// loader samples each to grid size; image-file decoding lives with the
// caller, outside the core.
type FrameSource interface {
	Len() int
	Frame(i int) (f Frame, w, h int)
}

// Load samples every frame of src to w*h.
func Load(src FrameSource, w, h int) ([]Frame, error) {
	if src.Len() == 0 {
		return nil, fmt.Errorf("frame source is empty")
	}
	frames := make([]Frame, src.Len())
	for i := range frames {
		f, fw, fh := src.Frame(i)
		if len(f) != fw*fh {
			return nil, fmt.Errorf("frame %d: %d cells for %dx%d", i, len(f), fw, fh)
		}
		frames[i] = Resample(f, fw, fh, w, h)
	}
	return frames, nil
}

// Resample fits a source frame to dst dimensions: frames at least as large
// as the grid are cropped at the origin, smaller ones are rescaled by
// nearest neighbour.
func Resample(src Frame, srcW, srcH, dstW, dstH int) Frame {
	if srcW == dstW && srcH == dstH {
		out := NewFrame(dstW, dstH)
		copy(out, src)
		return out
	}

	out := NewFrame(dstW, dstH)
	if srcW >= dstW && srcH >= dstH {
		for y := 0; y < dstH; y++ {
			copy(out[y*dstW:(y+1)*dstW], src[y*srcW:y*srcW+dstW])
		}
		return out
	}

	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			out[y*dstW+x] = src[sy*srcW+sx]
		}
	}
	return out
}

// StaticSource serves in-memory frames, all at the same dimensions.
type StaticSource struct {
	W, H   int
	Frames []Frame
}

func (s *StaticSource) Len() int { return len(s.Frames) }

func (s *StaticSource) Frame(i int) (Frame, int, int) {
	return s.Frames[i], s.W, s.H
}

// Uniform builds a single-colour frame, handy for static environments and
// tests.
func Uniform(w, h int, rgb [3]uint8) Frame {
	f := NewFrame(w, h)
	for i := range f {
		f[i] = rgb
	}
	return f
}

// NoiseSource generates keyframes procedurally from layered opensimplex
// noise, one independent field per colour channel, drifting along the noise
// z axis from frame to frame.
type NoiseSource struct {
	W, H      int
	Count     int
	Scale     float64 // base noise frequency
	Octaves   int
	Gain      float64 // amplitude multiplier per octave
	TimeStep  float64 // z-axis drift between keyframes
	noise     [3]opensimplex.Noise
}

// NewNoiseSource seeds three channel fields from one base seed.
func NewNoiseSource(seed int64, w, h, count int) *NoiseSource {
	s := &NoiseSource{
		W:        w,
		H:        h,
		Count:    count,
		Scale:    0.04,
		Octaves:  3,
		Gain:     0.5,
		TimeStep: 1.5,
	}
	for c := 0; c < 3; c++ {
		s.noise[c] = opensimplex.New(seed + int64(c))
	}
	return s
}

func (s *NoiseSource) Len() int { return s.Count }

func (s *NoiseSource) Frame(i int) (Frame, int, int) {
	f := NewFrame(s.W, s.H)
	z := float64(i) * s.TimeStep
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			var rgb [3]uint8
			for c := 0; c < 3; c++ {
				rgb[c] = s.sample(c, float64(x), float64(y), z)
			}
			f[y*s.W+x] = rgb
		}
	}
	return f, s.W, s.H
}

// sample evaluates fractal noise for one channel and maps [-1,1] to a byte.
func (s *NoiseSource) sample(c int, x, y, z float64) uint8 {
	freq := s.Scale
	amp := 1.0
	sum := 0.0
	norm := 0.0
	for o := 0; o < s.Octaves; o++ {
		sum += amp * s.noise[c].Eval3(x*freq, y*freq, z)
		norm += amp
		amp *= s.Gain
		freq *= 2
	}
	v := (sum/norm + 1) * 127.5
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint8(v)
}
