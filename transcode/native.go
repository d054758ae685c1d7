package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/tphakala/flac"

	"github.com/RyanBlaney/sonido-mood/algorithms/common"
	"github.com/RyanBlaney/sonido-mood/logging"
)

// samples per read from the WAV and MP3 decoders
const nativeChunkSize = 32768

// pcmSink collects interleaved samples, optionally downmixing each frame to
// mono, and reports when maxFrames frames have been stored
type pcmSink struct {
	channels  int
	downmix   bool
	maxFrames int

	frame  []float64
	filled int
	out    []float64
	frames int
}

func newPCMSink(channels int, downmix bool, maxFrames int) *pcmSink {
	return &pcmSink{
		channels:  channels,
		downmix:   downmix,
		maxFrames: maxFrames,
		frame:     make([]float64, channels),
	}
}

// push adds one interleaved sample and returns true once the sink is full
func (s *pcmSink) push(v float64) bool {
	if s.full() {
		return true
	}
	s.frame[s.filled] = v
	s.filled++
	if s.filled < s.channels {
		return false
	}

	s.filled = 0
	if s.downmix {
		sum := 0.0
		for _, c := range s.frame {
			sum += c
		}
		s.out = append(s.out, sum/float64(s.channels))
	} else {
		s.out = append(s.out, s.frame...)
	}
	s.frames++
	return s.full()
}

func (s *pcmSink) full() bool {
	return s.maxFrames > 0 && s.frames >= s.maxFrames
}

func (s *pcmSink) outChannels() int {
	if s.downmix {
		return 1
	}
	return s.channels
}

// sourceInfo is what a native decoder learns from the stream header
type sourceInfo struct {
	format     Format
	sampleRate int
	channels   int
	bitDepth   int
}

// decodeFileNative decodes WAV, FLAC or MP3 in-process, then downmixes,
// truncates and resamples to the configured target
func (d *Decoder) decodeFileNative(filename string, logger logging.Logger) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, err := DetectFormat(f, filename)
	if err != nil {
		return nil, err
	}

	var (
		sink *pcmSink
		info sourceInfo
	)
	switch format {
	case FormatWAV:
		sink, info, err = d.readWAV(f)
	case FormatFLAC:
		sink, info, err = d.readFLAC(f)
	case FormatMP3:
		sink, info, err = d.readMP3(f)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	if sink.frames == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	pcm := sink.out
	channels := sink.outChannels()
	sampleRate := info.sampleRate
	if d.config.TargetSampleRate > 0 && d.config.TargetSampleRate != info.sampleRate {
		pcm = resampleInterleaved(pcm, channels, info.sampleRate, d.config.TargetSampleRate)
		sampleRate = d.config.TargetSampleRate
	}

	frames := len(pcm) / channels
	duration := time.Duration(frames) * time.Second / time.Duration(sampleRate)

	logger.Debug("Native decode completed successfully", logging.Fields{
		"format":             format,
		"input_sample_rate":  info.sampleRate,
		"input_channels":     info.channels,
		"input_bit_depth":    info.bitDepth,
		"output_samples":     len(pcm),
		"output_sample_rate": sampleRate,
		"output_channels":    channels,
		"output_duration":    duration.Seconds(),
	})

	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   duration,
		Metadata: &StreamMetadata{
			Path:        filename,
			Backend:     BackendNative,
			Format:      string(format),
			Codec:       string(format),
			ContentType: contentTypeFromCodec(string(format)),
			SampleRate:  info.sampleRate,
			Channels:    info.channels,
		},
	}, nil
}

// newSink sizes a sink for a source stream according to the config
func (d *Decoder) newSink(sampleRate, channels int) *pcmSink {
	maxFrames := 0
	if d.config.MaxDuration > 0 {
		maxFrames = int(math.Ceil(d.config.MaxDuration.Seconds() * float64(sampleRate)))
	}
	downmix := d.config.TargetChannels == 1 && channels > 1
	return newPCMSink(channels, downmix, maxFrames)
}

func (d *Decoder) readWAV(r io.ReadSeeker) (*pcmSink, sourceInfo, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, sourceInfo{}, errors.New("invalid WAV file")
	}

	info := sourceInfo{
		format:     FormatWAV,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   int(decoder.BitDepth),
	}
	if info.sampleRate <= 0 {
		return nil, info, fmt.Errorf("invalid sample rate %d", info.sampleRate)
	}

	// WAVE_FORMAT_IEEE_FLOAT stores 32-bit floats; go-audio hands them over as raw bits
	isFloat := decoder.WavAudioFormat == 3
	if isFloat && info.bitDepth != 32 {
		return nil, info, fmt.Errorf("unsupported float bit depth: %d", info.bitDepth)
	}
	divisor, err := audioDivisor(info.bitDepth)
	if err != nil {
		return nil, info, err
	}

	sink := d.newSink(info.sampleRate, info.channels)
	buf := &audio.IntBuffer{
		Data:   make([]int, nativeChunkSize),
		Format: &audio.Format{SampleRate: info.sampleRate, NumChannels: info.channels},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, info, err
		}
		if n == 0 {
			break
		}

		for _, sample := range buf.Data[:n] {
			var v float64
			switch {
			case isFloat:
				v = float64(math.Float32frombits(uint32(int32(sample))))
			case info.bitDepth == 8:
				// 8-bit WAV is unsigned
				v = float64(sample-128) / divisor
			default:
				v = float64(sample) / divisor
			}
			if sink.push(v) {
				return sink, info, nil
			}
		}
	}

	return sink, info, nil
}

func (d *Decoder) readFLAC(f *os.File) (*pcmSink, sourceInfo, error) {
	decoder, err := flac.NewDecoder(f)
	if err != nil {
		return nil, sourceInfo{}, err
	}

	info := sourceInfo{
		format:     FormatFLAC,
		sampleRate: decoder.SampleRate,
		channels:   decoder.NChannels,
		bitDepth:   decoder.BitsPerSample,
	}
	if info.sampleRate <= 0 || info.channels <= 0 {
		return nil, info, fmt.Errorf("invalid stream info: %d Hz, %d channels", info.sampleRate, info.channels)
	}

	divisor, err := audioDivisor(info.bitDepth)
	if err != nil {
		return nil, info, err
	}
	width := (info.bitDepth + 7) / 8

	sink := d.newSink(info.sampleRate, info.channels)
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, info, err
		}

		for i := 0; i+width <= len(frame); i += width {
			if sink.push(float64(decodeSigned(frame[i:i+width])) / divisor) {
				return sink, info, nil
			}
		}
	}

	return sink, info, nil
}

func (d *Decoder) readMP3(r io.Reader) (*pcmSink, sourceInfo, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, sourceInfo{}, err
	}

	// go-mp3 always produces 16-bit little-endian stereo
	info := sourceInfo{
		format:     FormatMP3,
		sampleRate: decoder.SampleRate(),
		channels:   2,
		bitDepth:   16,
	}
	if info.sampleRate <= 0 {
		return nil, info, fmt.Errorf("invalid sample rate %d", info.sampleRate)
	}

	sink := d.newSink(info.sampleRate, info.channels)
	buf := make([]byte, nativeChunkSize*2)
	pending := 0
	for {
		n, err := decoder.Read(buf[pending:])
		n += pending
		usable := n - n%2
		for i := 0; i < usable; i += 2 {
			sample := int16(binary.LittleEndian.Uint16(buf[i:]))
			if sink.push(float64(sample) / 32768.0) {
				return sink, info, nil
			}
		}
		pending = copy(buf, buf[usable:n])

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, info, err
		}
	}

	return sink, info, nil
}

// audioDivisor returns the full-scale value for signed integer PCM
func audioDivisor(bitDepth int) (float64, error) {
	if bitDepth < 8 || bitDepth > 32 {
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	return float64(int64(1) << (bitDepth - 1)), nil
}

// decodeSigned reads a little-endian two's complement integer of 1-4 bytes
func decodeSigned(b []byte) int32 {
	var v uint32
	for i, c := range b {
		v |= uint32(c) << (8 * i)
	}
	shift := 32 - 8*len(b)
	return int32(v<<shift) >> shift
}

// resampleInterleaved resamples each channel independently
func resampleInterleaved(pcm []float64, channels, fromRate, toRate int) []float64 {
	r := common.NewResampler(common.DefaultLanczosLobes)
	if channels == 1 {
		return r.Resample(pcm, fromRate, toRate)
	}

	frames := len(pcm) / channels
	var out []float64
	for c := range channels {
		mono := make([]float64, frames)
		for i := range mono {
			mono[i] = pcm[i*channels+c]
		}
		resampled := r.Resample(mono, fromRate, toRate)
		if out == nil {
			out = make([]float64, len(resampled)*channels)
		}
		for i, v := range resampled {
			out[i*channels+c] = v
		}
	}
	return out
}
