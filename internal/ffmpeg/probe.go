package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
)

// Prober answers questions about media files with ffprobe.
type Prober struct {
	exec Executor
}

// NewProber creates a prober running commands through e.
func NewProber(e Executor) *Prober {
	return &Prober{exec: e}
}

type probeStream struct {
	CodecType     string            `json:"codec_type"`
	CodecName     string            `json:"codec_name"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	RFrameRate    string            `json:"r_frame_rate"`
	NbReadPackets string            `json:"nb_read_packets"`
	Tags          map[string]string `json:"tags"`
	SideData      []struct {
		Rotation *float64 `json:"rotation"`
	} `json:"side_data_list"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

func (p *Prober) probeJSON(ctx context.Context, path string, args ...string) (*probeOutput, error) {
	args = append([]string{"-v", "panic", "-print_format", "json"}, args...)
	args = append(args, path)
	out, err := p.exec.Run(ctx, FFprobe, args...)
	if err != nil {
		return nil, err
	}
	var parsed probeOutput
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	return &parsed, nil
}

func (p *Prober) firstVideoStream(ctx context.Context, path string, entries string) (*probeStream, error) {
	out, err := p.probeJSON(ctx, path, "-select_streams", "v:0", "-show_entries", entries)
	if err != nil {
		return nil, err
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("%s has no video stream", path)
	}
	return &out.Streams[0], nil
}

// Duration returns the container duration in seconds. APNG files, which
// ffprobe reports as N/A, are timed from their frame control chunks.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.exec.Run(ctx, FFprobe, "-v", "panic", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return 0, err
	}
	out = strings.TrimSpace(out)
	if out == "N/A" || out == "" {
		info, apngErr := readAPNG(path)
		if apngErr != nil {
			return 0, fmt.Errorf("duration of %s unavailable: %w", path, apngErr)
		}
		return info.Duration, nil
	}
	d, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out, err)
	}
	return d, nil
}

// Resolution returns the display width and height of the first video
// stream, swapped when rotation metadata turns the picture sideways.
func (p *Prober) Resolution(ctx context.Context, path string) (int, int, error) {
	s, err := p.firstVideoStream(ctx, path, "stream=width,height:stream_tags=rotate:stream_side_data=rotation")
	if err != nil {
		return 0, 0, err
	}
	w, h := s.Width, s.Height
	if sideways(s) {
		w, h = h, w
	}
	return w, h, nil
}

func sideways(s *probeStream) bool {
	var rot float64
	if raw, ok := s.Tags["rotate"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			rot = v
		}
	}
	for _, sd := range s.SideData {
		if sd.Rotation != nil {
			rot = *sd.Rotation
		}
	}
	return math.Mod(rot, 90) == 0 && math.Mod(rot, 180) != 0
}

// FrameRate returns frames per second of the first video stream.
func (p *Prober) FrameRate(ctx context.Context, path string) (float64, error) {
	s, err := p.firstVideoStream(ctx, path, "stream=r_frame_rate,codec_name")
	if err != nil {
		return 0, err
	}
	if s.CodecName == "apng" {
		info, err := readAPNG(path)
		if err != nil {
			return 0, err
		}
		return info.FrameRate(), nil
	}
	return parseRate(s.RFrameRate)
}

func parseRate(raw string) (float64, error) {
	num, den, found := strings.Cut(raw, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", raw, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("parse frame rate %q: bad denominator", raw)
	}
	return n / d, nil
}

// Codecs returns the codec names of the first video and audio streams.
// Either is empty when the stream is absent.
func (p *Prober) Codecs(ctx context.Context, path string) (video, audio string, err error) {
	out, err := p.probeJSON(ctx, path, "-show_entries", "stream=codec_name,codec_type")
	if err != nil {
		return "", "", err
	}
	for _, s := range out.Streams {
		switch {
		case s.CodecType == "video" && video == "":
			video = s.CodecName
		case s.CodecType == "audio" && audio == "":
			audio = s.CodecName
		}
	}
	return video, audio, nil
}

// VideoCodec returns the codec of the first video stream, or "".
func (p *Prober) VideoCodec(ctx context.Context, path string) (string, error) {
	out, err := p.probeJSON(ctx, path, "-select_streams", "v:0", "-show_entries", "stream=codec_name")
	if err != nil {
		return "", err
	}
	if len(out.Streams) == 0 {
		return "", nil
	}
	return out.Streams[0].CodecName, nil
}

// IsAPNG reports whether the first video stream is an animated PNG.
func (p *Prober) IsAPNG(ctx context.Context, path string) (bool, error) {
	codec, err := p.VideoCodec(ctx, path)
	return codec == "apng", err
}

// HasAudio reports whether the file has any audio stream.
func (p *Prober) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := p.exec.Run(ctx, FFprobe, "-i", path, "-show_streams", "-select_streams", "a", "-loglevel", "panic")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CountFrames counts the packets of the first video stream.
func (p *Prober) CountFrames(ctx context.Context, path string) (int, error) {
	out, err := p.exec.Run(ctx, FFprobe, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "csv=p=0", path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse frame count %q: %w", out, err)
	}
	return n, nil
}

var loopCountPattern = regexp.MustCompile(`Loop count is (\d+)`)

// LoopCount returns the gif loop count: 0 loops forever, -1 means the file
// has no loop extension and plays once. Files that are not gif-coded are
// reported as looping forever.
func (p *Prober) LoopCount(ctx context.Context, path string) (int, error) {
	codec, err := p.VideoCodec(ctx, path)
	if err != nil {
		return 0, err
	}
	if codec != "" && codec != "gif" {
		return 0, nil
	}
	out, err := p.exec.Run(ctx, FFmpeg, "-i", path, "-v", "debug", "-f", "null", "-")
	if err != nil {
		return 0, err
	}
	lc := -1
	if m := loopCountPattern.FindStringSubmatch(out); m != nil {
		lc, _ = strconv.Atoi(m[1])
	}
	logging.Debug("Detected %s loop count as %d", path, lc)
	return lc, nil
}

// Streams lists every stream with its counted packets, for classification.
func (p *Prober) Streams(ctx context.Context, path string) ([]mediatype.Stream, error) {
	out, err := p.probeJSON(ctx, path, "-count_packets", "-show_entries", "stream=codec_type,codec_name,nb_read_packets")
	if err != nil {
		return nil, err
	}
	streams := make([]mediatype.Stream, 0, len(out.Streams))
	for _, s := range out.Streams {
		packets := -1
		if s.NbReadPackets != "" {
			if n, err := strconv.Atoi(s.NbReadPackets); err == nil {
				packets = n
			}
		}
		streams = append(streams, mediatype.Stream{CodecType: s.CodecType, CodecName: s.CodecName, Packets: packets})
	}
	return streams, nil
}

// Info is a summary of a media file.
type Info struct {
	Duration   float64 `json:"duration,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  float64 `json:"fps,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
}

// Describe gathers the fields of Info that apply to the file; probes that
// fail (for example resolution of an audio file) are left zero.
func (p *Prober) Describe(ctx context.Context, path string) (*Info, error) {
	info := &Info{}
	var err error
	if info.VideoCodec, info.AudioCodec, err = p.Codecs(ctx, path); err != nil {
		return nil, err
	}
	if d, err := p.Duration(ctx, path); err == nil {
		info.Duration = d
	}
	if info.VideoCodec != "" {
		if w, h, err := p.Resolution(ctx, path); err == nil {
			info.Width, info.Height = w, h
		}
		if fps, err := p.FrameRate(ctx, path); err == nil {
			info.FrameRate = fps
		}
	}
	return info, nil
}
