package audio

import (
	"fmt"
	"math"
)

// LinearResampler 线性插值重采样，适合实时语音
type LinearResampler struct{}

func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample interpolates each output frame between the two nearest input frames:
//
//	pos = out * inputRate / outputRate
//	y = x[floor(pos)]*(1-frac) + x[floor(pos)+1]*frac
func (r *LinearResampler) Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channels: %d", channels)
	}
	if len(input) == 0 {
		return []int16{}, nil
	}
	if inputRate == outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out, nil
	}

	inFrames := len(input) / channels
	if inFrames == 0 {
		return []int16{}, nil
	}

	step := float64(inputRate) / float64(outputRate)
	outFrames := int(math.Ceil(float64(inFrames) / step))
	out := make([]int16, outFrames*channels)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		left := int(pos)
		frac := pos - float64(left)
		if left >= inFrames-1 {
			left = max(inFrames-2, 0)
			frac = 1.0
		}
		right := min(left+1, inFrames-1)

		for ch := 0; ch < channels; ch++ {
			a := float64(input[left*channels+ch])
			b := float64(input[right*channels+ch])
			out[i*channels+ch] = clampInt16(a*(1.0-frac) + b*frac)
		}
	}
	return out, nil
}

func clampInt16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
