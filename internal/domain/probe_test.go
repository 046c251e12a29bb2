package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeResultDimensions(t *testing.T) {
	probe := &ProbeResult{
		Streams: []ProbeStream{
			{CodecType: "audio", Index: 0},
			{CodecType: "video", Index: 1, Width: 1920, Height: 1080},
		},
	}

	w, h := probe.Dimensions()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	audioOnly := &ProbeResult{Streams: []ProbeStream{{CodecType: "audio"}}}
	w, h = audioOnly.Dimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.Nil(t, audioOnly.VideoStream())
}

func TestProbeResultDurationSeconds(t *testing.T) {
	tests := []struct {
		name  string
		probe ProbeResult
		want  float64
	}{
		{
			name:  "container duration wins",
			probe: ProbeResult{Format: ProbeFormat{Duration: "12.5"}},
			want:  12.5,
		},
		{
			name: "falls back to the video stream",
			probe: ProbeResult{
				Format:  ProbeFormat{Duration: "N/A"},
				Streams: []ProbeStream{{CodecType: "video", Duration: "7.25"}},
			},
			want: 7.25,
		},
		{
			name:  "unknown everywhere is zero",
			probe: ProbeResult{},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.probe.DurationSeconds())
		})
	}
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, ParseFrameRate("25/1"))
	assert.Zero(t, ParseFrameRate("0/0"))
	assert.Zero(t, ParseFrameRate(""))
	assert.Zero(t, ParseFrameRate("garbage"))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 90.5, ParseDuration("90.5"))
	assert.Zero(t, ParseDuration("N/A"))
	assert.Zero(t, ParseDuration(""))
	assert.Zero(t, ParseDuration("not-a-number"))
}
