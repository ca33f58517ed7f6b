package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// SilenceDBFS is reported for chunks with no signal
const SilenceDBFS = -120.0

var ErrUnsupportedWAV = errors.New("unsupported wav")

// DBFS reads a PCM WAV file and returns its RMS level relative to full scale
func DBFS(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	width, data, err := readPCM(f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return LevelDBFS(data, width), nil
}

// LevelDBFS computes the level of little-endian signed samples of the given byte width.
// The RMS is truncated to an integer sample value first, so anything below one LSB is silence.
func LevelDBFS(data []byte, width int) float64 {
	n := len(data) / width
	if n == 0 {
		return SilenceDBFS
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := sample(data[i*width:], width)
		sum += s * s
	}
	rms := math.Floor(math.Sqrt(sum / float64(n)))
	if rms <= 0 {
		return SilenceDBFS
	}

	fullScale := math.Exp2(float64(8*width - 1))
	return 20 * math.Log10(rms/fullScale)
}

func sample(b []byte, width int) float64 {
	switch width {
	case 1:
		return float64(int8(b[0]))
	case 2:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		return float64(v)
	default:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	}
}

// readPCM walks the RIFF chunks and returns the sample width and the data chunk
func readPCM(r io.Reader) (int, []byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: short header", ErrUnsupportedWAV)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	width := 0
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return 0, nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, nil, fmt.Errorf("%w: truncated fmt chunk", ErrUnsupportedWAV)
			}
			if size < 16 {
				return 0, nil, fmt.Errorf("%w: fmt chunk too small", ErrUnsupportedWAV)
			}
			bits := int(binary.LittleEndian.Uint16(body[14:16]))
			width = bits / 8
			if width < 1 || width > 4 || bits%8 != 0 {
				return 0, nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, bits)
			}
		case "data":
			if width == 0 {
				return 0, nil, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			// ffmpeg leaves the size unset when it cannot seek back
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return 0, nil, err
			}
			return width, data, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return 0, nil, fmt.Errorf("%w: truncated %q chunk", ErrUnsupportedWAV, id)
			}
		}
	}
}

// ScoreFromDBFS maps a level onto [0, 1] between floor and ceil
func ScoreFromDBFS(db, floor, ceil float64) float64 {
	if ceil <= floor {
		return 0
	}
	return clamp01((db - floor) / (ceil - floor))
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// Smoother tracks a fast EMA of the score (A) and a slow baseline of that EMA (B).
// Both are seeded by their first input.
type Smoother struct {
	EMAAlpha      float64
	BaselineAlpha float64

	ema, base float64
	primed    bool
}

func NewSmoother(emaAlpha, baselineAlpha float64) *Smoother {
	return &Smoother{EMAAlpha: emaAlpha, BaselineAlpha: baselineAlpha}
}

func (s *Smoother) Update(score float64) (a, b float64) {
	if !s.primed {
		s.ema, s.base, s.primed = score, score, true
		return s.ema, s.base
	}
	s.ema = s.EMAAlpha*score + (1-s.EMAAlpha)*s.ema
	s.base = s.BaselineAlpha*s.ema + (1-s.BaselineAlpha)*s.base
	return s.ema, s.base
}
