package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrorFatal(t *testing.T) {
	tests := []struct {
		stage Stage
		want  bool
	}{
		{StageDownload, true},
		{StageProbe, true},
		{StageEncode, false},
		{StageUpload, false},
		{StageThumbnail, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			err := NewStageError(tt.stage, "", errors.New("boom"))
			assert.Equal(t, tt.want, err.Fatal())
		})
	}
}

func TestStageErrorMessage(t *testing.T) {
	plain := NewStageError(StageProbe, "", ErrNoVideoStream)
	assert.Equal(t, "probe: source has no video stream", plain.Error())

	perRendition := NewStageError(StageEncode, "720p", errors.New("exit status 1"))
	assert.Equal(t, "encode 720p: exit status 1", perRendition.Error())
}

func TestStageErrorUnwrap(t *testing.T) {
	err := NewStageError(StageProbe, "", ErrNoVideoStream)
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestTruncateError(t *testing.T) {
	short := "encode failed"
	assert.Equal(t, short, TruncateError(short))

	long := strings.Repeat("x", maxErrorMessage+100)
	got := TruncateError(long)
	assert.Len(t, got, maxErrorMessage+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}
