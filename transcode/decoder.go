package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-mood/logging"
)

// Backend selects how files are decoded
type Backend string

const (
	// BackendAuto uses ffmpeg when it can be executed, the native decoders otherwise
	BackendAuto Backend = "auto"
	// BackendFFmpeg shells out to ffprobe/ffmpeg
	BackendFFmpeg Backend = "ffmpeg"
	// BackendNative decodes WAV, FLAC and MP3 in-process
	BackendNative Backend = "native"
)

// ParseBackend maps a config value to a Backend
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendFFmpeg, BackendNative:
		return b, nil
	default:
		return BackendAuto, fmt.Errorf("unknown decoder backend %q", s)
	}
}

// ErrFFmpegUnavailable is returned when the ffmpeg backend is required but
// ffmpeg or ffprobe cannot be executed
var ErrFFmpegUnavailable = errors.New("ffmpeg not available")

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64       `json:"-"` // Interleaved PCM samples in [-1, 1]
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Duration   time.Duration   `json:"duration"`
	Metadata   *StreamMetadata `json:"metadata,omitempty"`
}

// StreamMetadata describes the source file of decoded audio
type StreamMetadata struct {
	Path        string  `json:"path"`
	Backend     Backend `json:"backend"`
	Format      string  `json:"format"`
	Codec       string  `json:"codec,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"` // Source sample rate
	Channels    int     `json:"channels,omitempty"`    // Source channel count
	Bitrate     int     `json:"bitrate,omitempty"`
	Duration    float64 `json:"duration,omitempty"` // Source duration in seconds, if known
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Genre       string  `json:"genre,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	Backend          Backend       `json:"backend"`
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`  // 1 downmixes; 0 keeps the source layout (native only)
	MaxDuration      time.Duration `json:"max_duration"`     // 0 means no limit
	ResampleQuality  string        `json:"resample_quality"` // "fast", "medium", "high" (ffmpeg only)
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout"` // Per ffmpeg/ffprobe invocation, 0 disables
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		Backend:          BackendAuto,
		TargetSampleRate: 22050,
		TargetChannels:   1,
		MaxDuration:      0,
		ResampleQuality:  "medium",
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          0,
	}
}

// Decoder turns audio files into float PCM
type Decoder struct {
	config *DecoderConfig

	// resolved lazily for BackendAuto, shared by copies from WithTarget
	resolve *backendResolver
}

type backendResolver struct {
	once    sync.Once
	backend Backend

	soxrOnce sync.Once
	soxr     bool
}

// AudioMetadata holds detected audio properties from ffprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	cfg := *config
	return &Decoder{config: &cfg, resolve: &backendResolver{}}
}

// WithTarget returns a decoder sharing this decoder's backend but producing
// the given output layout
func (d *Decoder) WithTarget(sampleRate, channels int, maxDuration time.Duration) *Decoder {
	cfg := *d.config
	cfg.TargetSampleRate = sampleRate
	cfg.TargetChannels = channels
	cfg.MaxDuration = maxDuration
	return &Decoder{config: &cfg, resolve: d.resolve}
}

// Backend returns the backend that DecodeFile uses. For BackendAuto this
// probes for ffmpeg once.
func (d *Decoder) Backend() Backend {
	if d.config.Backend != BackendAuto && d.config.Backend != "" {
		return d.config.Backend
	}
	d.resolve.once.Do(func() {
		d.resolve.backend = BackendNative
		if d.checkFFmpegAvailability() == nil {
			d.resolve.backend = BackendFFmpeg
		}
		logging.Debug("Resolved decoder backend", logging.Fields{
			"component": "audio_decoder",
			"backend":   d.resolve.backend,
		})
	})
	return d.resolve.backend
}

// DecodeFile decodes an audio file and returns PCM data
func (d *Decoder) DecodeFile(filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	backend := d.Backend()
	logger.Debug("Starting audio file decode", logging.Fields{"backend": backend})

	var (
		data *AudioData
		err  error
	)
	switch backend {
	case BackendFFmpeg:
		data, err = d.decodeFileWithFFmpeg(filename, logger)
	default:
		data, err = d.decodeFileNative(filename, logger)
	}
	if err != nil {
		return nil, err
	}

	if tags, tagErr := ReadTags(filename); tagErr == nil {
		tags.applyTo(data.Metadata)
	}
	return data, nil
}

// ValidateConfig validates the decoder configuration and, for the ffmpeg
// backend, that the binaries can be executed
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels < 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 0 and 8: %d", d.config.TargetChannels)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	if d.config.Backend == BackendFFmpeg {
		if err := d.checkFFmpegAvailability(); err != nil {
			return fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
		}
	}

	return nil
}

// probeAudioFile uses ffprobe to get audio information from a file
func (d *Decoder) probeAudioFile(filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		filename,
	}

	ctx, cancel := d.commandContext()
	defer cancel()

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return d.parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func (d *Decoder) parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 0
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decodeFileWithFFmpeg probes the file and pipes it through ffmpeg as f64le
func (d *Decoder) decodeFileWithFFmpeg(filename string, logger logging.Logger) (*AudioData, error) {
	metadata, err := d.probeAudioFile(filename)
	if err != nil {
		logger.Debug("Failed to probe audio file", logging.Fields{"error": err.Error()})
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	args := d.buildFFmpegArgs(metadata, d.soxrAvailable())
	args = append([]string{"-i", filename}, args...)
	args = append(args, "pipe:1")

	ctx, cancel := d.commandContext()
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	return d.processFFmpegOutput(output, metadata, filename, logger)
}

func (d *Decoder) commandContext() (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(context.Background(), d.config.Timeout)
	}
	return context.WithCancel(context.Background())
}

// outputChannels is the channel count ffmpeg is asked for
func (d *Decoder) outputChannels(metadata *AudioMetadata) int {
	if d.config.TargetChannels > 0 {
		return d.config.TargetChannels
	}
	return metadata.Channels
}

// buildFFmpegArgs builds the ffmpeg arguments based on configuration and
// metadata. Without soxr, ffmpeg's default swr resampler is used.
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata, soxr bool) []string {
	args := []string{
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(d.outputChannels(metadata)),
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if soxr && d.config.ResampleQuality != "" && metadata.SampleRate != d.config.TargetSampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			args = append(args, "-af", "aresample=resampler=soxr:precision=16")
		case "medium":
			args = append(args, "-af", "aresample=resampler=soxr:precision=20")
		case "high":
			args = append(args, "-af", "aresample=resampler=soxr:precision=28")
		}
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(d.config.MaxDuration.Seconds(), 'f', 3, 64))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// processFFmpegOutput processes the raw output from ffmpeg
func (d *Decoder) processFFmpegOutput(output []byte, inputMetadata *AudioMetadata, filename string, logger logging.Logger) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	channels := d.outputChannels(inputMetadata)
	samplesPerChannel := len(samples) / channels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(d.config.TargetSampleRate)

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": d.config.TargetSampleRate,
		"output_channels":    channels,
		"output_duration":    duration.Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   channels,
		Duration:   duration,
		Metadata: &StreamMetadata{
			Path:        filename,
			Backend:     BackendFFmpeg,
			Format:      inputMetadata.Format,
			Codec:       inputMetadata.Codec,
			ContentType: contentTypeFromCodec(inputMetadata.Codec),
			SampleRate:  inputMetadata.SampleRate,
			Channels:    inputMetadata.Channels,
			Bitrate:     inputMetadata.Bitrate,
			Duration:    inputMetadata.Duration,
		},
	}, nil
}

// contentTypeFromCodec maps codec to content type
func contentTypeFromCodec(codec string) string {
	switch codec {
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "vorbis", "ogg":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le", "pcm_u8", "wav":
		return "audio/wav"
	default:
		return "audio/unknown"
	}
}

// bytesToFloat64 converts raw little-endian float64 bytes to []float64,
// dropping a trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	if sampleCount == 0 {
		return nil
	}

	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// checkFFmpegAvailability checks if ffmpeg and ffprobe are available
func (d *Decoder) checkFFmpegAvailability() error {
	if err := exec.Command(d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}

	if err := exec.Command(d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}

	return nil
}

// soxrAvailable reports whether the configured ffmpeg was built with libsoxr.
// The answer is cached for the decoder and its WithTarget copies.
func (d *Decoder) soxrAvailable() bool {
	d.resolve.soxrOnce.Do(func() {
		out, err := exec.Command(d.config.FFmpegPath, "-hide_banner", "-version").Output()
		d.resolve.soxr = err == nil && hasSoxr(string(out))
		logging.Debug("Checked ffmpeg resampler", logging.Fields{
			"component": "audio_decoder",
			"soxr":      d.resolve.soxr,
		})
	})
	return d.resolve.soxr
}

// hasSoxr looks for libsoxr in the build configuration printed by ffmpeg -version
func hasSoxr(version string) bool {
	return strings.Contains(version, "--enable-libsoxr")
}

// GetSupportedFormats returns the formats the active backend can decode
func (d *Decoder) GetSupportedFormats() []string {
	if d.Backend() == BackendNative {
		return []string{"wav", "flac", "mp3"}
	}
	return []string{"aac", "mp3", "wav", "flac", "ogg", "opus", "m4a", "wma", "webm", "mp4"}
}
