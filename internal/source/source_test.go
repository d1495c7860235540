package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NekoSaan/h264Player/internal/codec/h264"
	"github.com/NekoSaan/h264Player/internal/codec/h264/h264test"
	"github.com/NekoSaan/h264Player/internal/container/annexb"
	"github.com/NekoSaan/h264Player/internal/container/mp4"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		path string
		head []byte
		want Format
	}{
		{"ftyp box", "clip.bin", []byte("\x00\x00\x00\x18ftypisom"), FormatMP4},
		{"moov first", "clip", []byte("\x00\x00\x01\x00moov"), FormatMP4},
		{"4 byte start code", "clip.bin", []byte{0, 0, 0, 1, 0x67}, FormatAnnexB},
		{"3 byte start code", "clip.bin", []byte{0, 0, 1, 0x09}, FormatAnnexB},
		{"mp4 extension", "clip.MP4", []byte("junk"), FormatMP4},
		{"h264 extension", "clip.264", nil, FormatAnnexB},
		{"unknown", "notes.txt", []byte("hello world"), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.path, tt.head))
		})
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenElementaryStream(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)

	path := writeFile(t, "clip.h264", h264test.Stream(h264test.DefaultStream(30)))
	s, err := Open(path, Options{Logger: logger.NewLogrusAdapter(logrus.NewEntry(base))})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "annexb", s.Info().Container)
	assert.Contains(t, buf.String(), "Input stream")
	assert.Contains(t, buf.String(), "frame_rate=25/1")

	ctx := context.Background()
	var n int
	for {
		f, err := s.ReadFrame(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int64(n*3600), f.PTS)
		n++
	}
	assert.Equal(t, 30, n)
}

func TestOpenMP4(t *testing.T) {
	src, err := annexb.New(h264test.Stream(h264test.DefaultStream(10)), annexb.Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "clip.dat")
	w, err := mp4.Create(path, mp4.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(src.Info()))
	for {
		pkt, err := src.ReadPacket(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, w.WritePacket(pkt))
	}
	require.NoError(t, w.WriteTrailer())
	require.NoError(t, w.Close())

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "mp4", s.Info().Container)

	f, err := s.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, media.FrameTypeIDR, f.Type)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.h264"), Options{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))

	_, err = Open(writeFile(t, "notes.txt", []byte("hello world")), Options{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))
	assert.Contains(t, err.Error(), "unrecognized input format")
}

func TestSeekAndFlushDropsUntilKeyframe(t *testing.T) {
	d, err := annexb.New(h264test.Stream(h264test.DefaultStream(100)), annexb.Options{})
	require.NoError(t, err)
	s := New("clip.h264", d, h264.NewDecoder(d.Info().TimeBase, h264.StreamParams{}), nil)
	ctx := context.Background()

	_, err = s.ReadFrame(ctx)
	require.NoError(t, err)

	// Landing on a P frame after a flush skips ahead to the next keyframe.
	require.NoError(t, s.Seek(225000, media.SeekAny))
	s.Flush()
	f, err := s.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(75), f.Index)
	assert.True(t, f.Keyframe)

	require.NoError(t, s.Seek(225000, media.SeekBackward))
	s.Flush()
	f, err = s.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.Index)
}

type failingDemuxer struct {
	media.Demuxer
	readErr error
	seekErr error
}

func (f *failingDemuxer) Info() media.StreamInfo {
	return media.StreamInfo{Container: "fake", TimeBase: timebase.TimeBase90kHz}
}

func (f *failingDemuxer) ReadPacket(context.Context) (*media.Packet, error) {
	return nil, f.readErr
}

func (f *failingDemuxer) Seek(int64, media.SeekMode) error {
	return f.seekErr
}

func TestErrorKinds(t *testing.T) {
	d := &failingDemuxer{readErr: errors.New("disk gone"), seekErr: errors.New("no index")}
	s := New("fake", d, h264.NewDecoder(timebase.TimeBase90kHz, h264.StreamParams{}), nil)

	_, err := s.ReadFrame(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransientIO))
	assert.Contains(t, err.Error(), "fake")

	err = s.Seek(0, media.SeekBackward)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSeek))

	d.readErr = io.EOF
	_, err = s.ReadFrame(context.Background())
	assert.Equal(t, io.EOF, err)
}
