package domain

import (
	"fmt"
	"strconv"
)

// ProbeFormat mirrors the "format" object of ffprobe's JSON output.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	NbStreams  int    `json:"nb_streams"`
}

// ProbeStream mirrors one entry of the "streams" array of ffprobe's JSON
// output. Only fields the ladder and encoder read are kept.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// ProbeResult is the decoded ffprobe report for a source file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

func (p *ProbeResult) VideoStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

func (p *ProbeResult) AudioStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// Dimensions returns the width and height of the first video stream, or
// zeros when the file has none.
func (p *ProbeResult) Dimensions() (width, height int) {
	vs := p.VideoStream()
	if vs != nil {
		return vs.Width, vs.Height
	}
	return 0, 0
}

// DurationSeconds returns the container duration, falling back to the video
// stream's own duration when the container does not carry one. Zero means
// unknown; encode progress is then indeterminate but the encode still runs.
func (p *ProbeResult) DurationSeconds() float64 {
	if d := ParseDuration(p.Format.Duration); d > 0 {
		return d
	}
	if vs := p.VideoStream(); vs != nil {
		return ParseDuration(vs.Duration)
	}
	return 0
}

// ParseFrameRate evaluates ffprobe's fractional frame rate ("30000/1001").
func ParseFrameRate(fraction string) float64 {
	if fraction == "" || fraction == "0/0" {
		return 0
	}
	var num, den int
	if _, err := fmt.Sscanf(fraction, "%d/%d", &num, &den); err == nil && den > 0 {
		return float64(num) / float64(den)
	}
	return 0
}

// ParseDuration evaluates ffprobe's duration string, which is fractional
// seconds or "N/A".
func ParseDuration(durationStr string) float64 {
	if durationStr == "" || durationStr == "N/A" {
		return 0
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0
	}
	return duration
}
