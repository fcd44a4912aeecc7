package audio

import "encoding/binary"

// ToInt16 converts a float stereo frame in [-1, 1] to interleaved int16 samples,
// clipping anything outside the int16 range.
func ToInt16(frame [][2]float64) []int16 {
	out := make([]int16, len(frame)*Channels)
	for i, s := range frame {
		out[i*2] = clip(s[0] * 32767)
		out[i*2+1] = clip(s[1] * 32767)
	}
	return out
}

// FromInt16 converts interleaved int16 samples back into a float stereo frame.
func FromInt16(samples []int16) [][2]float64 {
	frame := make([][2]float64, len(samples)/Channels)
	for i := range frame {
		frame[i][0] = float64(samples[i*2]) / 32768
		frame[i][1] = float64(samples[i*2+1]) / 32768
	}
	return frame
}

func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
