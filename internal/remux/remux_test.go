package remux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NekoSaan/h264Player/internal/codec/h264/h264test"
	"github.com/NekoSaan/h264Player/internal/container/mp4"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/source"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

type fakeDemuxer struct {
	info    media.StreamInfo
	packets int
	readErr map[int]error // by read attempt
	reads   int
	next    int
	closed  bool
}

func (d *fakeDemuxer) Info() media.StreamInfo { return d.info }

func (d *fakeDemuxer) ReadPacket(ctx context.Context) (*media.Packet, error) {
	attempt := d.reads
	d.reads++
	if err, ok := d.readErr[attempt]; ok {
		return nil, err
	}
	if d.next >= d.packets {
		return nil, io.EOF
	}
	i := d.next
	d.next++
	return &media.Packet{
		Data:     []byte{0, 0, 0, 1, 0x41, byte(i)},
		PTS:      media.NoTimestamp,
		DTS:      media.NoTimestamp,
		Pos:      int64(i * 6),
		Keyframe: i%25 == 0,
		Index:    int64(i),
	}, nil
}

func (d *fakeDemuxer) Seek(int64, media.SeekMode) error { return nil }
func (d *fakeDemuxer) Close() error { d.closed = true; return nil }

type fakeWriter struct {
	tb        timebase.Rational
	failAt    map[int]error // by write attempt
	headerErr error
	attempts  int
	packets   []media.Packet
	header    bool
	trailer   bool
	closed    bool
}

func (w *fakeWriter) WriteHeader(media.StreamInfo) error {
	if w.headerErr != nil {
		return w.headerErr
	}
	w.header = true
	return nil
}

func (w *fakeWriter) WritePacket(pkt *media.Packet) error {
	attempt := w.attempts
	w.attempts++
	if err, ok := w.failAt[attempt]; ok {
		return err
	}
	w.packets = append(w.packets, *pkt)
	return nil
}

func (w *fakeWriter) WriteTrailer() error { w.trailer = true; return nil }
func (w *fakeWriter) TimeBase() timebase.Rational { return w.tb }
func (w *fakeWriter) TimestampRange() timebase.Range { return timebase.Range{Min: 0, Max: 1<<31 - 1} }
func (w *fakeWriter) Close() error { w.closed = true; return nil }

func esInfo(rate timebase.Rational) media.StreamInfo {
	return media.StreamInfo{
		Container: "annexb",
		Codec:     "h264",
		TimeBase:  timebase.TimeBase90kHz,
		FrameRate: rate,
	}
}

func TestRunSynthesizesTimestamps(t *testing.T) {
	d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 10}
	w := &fakeWriter{tb: timebase.TimeBase90kHz}

	res, err := New(d, w, Options{Input: "in.h264", Output: "out.mp4", Logger: logger.NullLogger{}}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, w.header)
	assert.True(t, w.trailer)
	assert.True(t, w.closed)
	assert.True(t, d.closed)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, int64(10), res.Read)
	assert.Equal(t, int64(10), res.Written)
	assert.Equal(t, 400*time.Millisecond, res.Duration)

	require.Len(t, w.packets, 10)
	for i, pkt := range w.packets {
		assert.Equal(t, int64(i*3600), pkt.PTS)
		assert.Equal(t, pkt.PTS, pkt.DTS)
		assert.Equal(t, int64(3600), pkt.Duration)
		assert.Equal(t, media.UnknownPos, pkt.Pos)
	}
}

func TestRunDestinationTimeBase(t *testing.T) {
	tests := []struct {
		name     string
		rate     timebase.Rational
		override timebase.Rational
		dest     timebase.Rational
		pts      []int64
		duration int64
	}{
		{"25fps into 1/1000", timebase.FrameRate25, timebase.Rational{}, timebase.Milliseconds, []int64{0, 40, 80}, 40},
		{"override 50fps", timebase.FrameRate25, timebase.Rational{Num: 50, Den: 1}, timebase.TimeBase90kHz, []int64{0, 1800, 3600}, 1800},
		{"29.97 into 1/90000", timebase.FrameRate29_97, timebase.Rational{}, timebase.TimeBase90kHz, []int64{0, 3003, 6006}, 3003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDemuxer{info: esInfo(tt.rate), packets: 3}
			w := &fakeWriter{tb: tt.dest}
			_, err := New(d, w, Options{FrameRate: tt.override}).Run(context.Background())
			require.NoError(t, err)

			require.Len(t, w.packets, 3)
			for i, pkt := range w.packets {
				assert.Equal(t, tt.pts[i], pkt.PTS)
				assert.Equal(t, tt.duration, pkt.Duration)
			}
		})
	}
}

func TestRunWithoutFrameRate(t *testing.T) {
	d := &fakeDemuxer{info: esInfo(timebase.Rational{}), packets: 3}
	w := &fakeWriter{tb: timebase.TimeBase90kHz}

	_, err := New(d, w, Options{Input: "in.h264"}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis))
	assert.Contains(t, err.Error(), "in.h264")
	assert.Empty(t, w.packets)
	assert.False(t, w.header, "fails before any output is written")
	assert.False(t, w.trailer)
	assert.True(t, w.closed)
	assert.True(t, d.closed)
}

func TestRunThreeConsecutiveWriteFailures(t *testing.T) {
	boom := errors.New("disk full")
	d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 100}
	w := &fakeWriter{tb: timebase.TimeBase90kHz, failAt: map[int]error{5: boom, 6: boom, 7: boom}}

	res, err := New(d, w, Options{Output: "out.mp4"}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStream))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "write_packet")
	assert.Contains(t, err.Error(), "out.mp4")

	assert.Equal(t, int64(8), res.Read, "terminates instead of retrying")
	assert.Equal(t, int64(5), res.Written)
	assert.False(t, w.trailer)
	assert.True(t, w.closed)
}

func TestRunSkipsIsolatedFailures(t *testing.T) {
	boom := errors.New("short write")
	d := &fakeDemuxer{
		info:    esInfo(timebase.FrameRate25),
		packets: 10,
		readErr: map[int]error{2: errors.New("truncated")},
	}
	w := &fakeWriter{tb: timebase.TimeBase90kHz, failAt: map[int]error{3: boom, 4: boom, 6: boom}}

	res, err := New(d, w, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Read)
	assert.Equal(t, int64(7), res.Written)
	assert.Equal(t, int64(4), res.Skipped)
	assert.True(t, w.trailer)

	// failed packets keep their frame index, so the output has gaps but
	// stays strictly increasing
	var pts []int64
	for _, pkt := range w.packets {
		pts = append(pts, pkt.PTS/3600)
	}
	assert.Equal(t, []int64{0, 1, 2, 5, 7, 8, 9}, pts)
}

func TestRunDependentPacketsDoNotExhaustBudget(t *testing.T) {
	boom := errors.New("short write")
	await := apperrors.WrapTransientError(media.ErrAwaitingKeyframe, "write_packet")
	failAt := map[int]error{25: boom}
	for i := 26; i < 50; i++ {
		failAt[i] = await
	}
	d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 60}
	w := &fakeWriter{tb: timebase.TimeBase90kHz, failAt: failAt}

	res, err := New(d, w, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Read)
	assert.Equal(t, int64(35), res.Written)
	assert.Equal(t, int64(25), res.Skipped)
	assert.True(t, w.trailer)
	require.Len(t, w.packets, 35)
	assert.True(t, w.packets[25].Keyframe)
}

func TestRemuxFileRecoversFromFailedFragment(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.h264")
	require.NoError(t, os.WriteFile(in, h264test.Stream(h264test.DefaultStream(60)), 0o644))
	src, err := source.OpenDemuxer(in, source.Options{})
	require.NoError(t, err)

	out := &failOnceWriter{}
	w := mp4.NewWriter(out, mp4.WriterOptions{})
	res, err := New(src, w, Options{Input: in}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(35), res.Written)
	assert.Equal(t, int64(25), res.Skipped)

	d, err := mp4.NewFromReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, res.Written, d.Info().FrameCount, "written packets match the output")
}

// failOnceWriter rejects the first fragment written to it.
type failOnceWriter struct {
	bytes.Buffer
	failed bool
}

func (w *failOnceWriter) Write(p []byte) (int, error) {
	if !w.failed && len(p) >= 8 && string(p[4:8]) == "moof" {
		w.failed = true
		return 0, errors.New("device not ready")
	}
	return w.Buffer.Write(p)
}

func TestRunFatalErrors(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 3}
		w := &fakeWriter{tb: timebase.TimeBase90kHz, headerErr: errors.New("no SPS")}
		_, err := New(d, w, Options{Output: "out.mp4"}).Run(context.Background())
		assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))
		assert.True(t, w.closed)
	})

	t.Run("setup error from writer", func(t *testing.T) {
		d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 3}
		w := &fakeWriter{tb: timebase.TimeBase90kHz, failAt: map[int]error{
			0: apperrors.NewSetupError("write_packet", "header not written"),
		}}
		_, err := New(d, w, Options{}).Run(context.Background())
		assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))
		assert.Equal(t, 1, w.attempts)
	})

	t.Run("three consecutive read failures", func(t *testing.T) {
		bad := errors.New("bad packet")
		d := &fakeDemuxer{
			info:    esInfo(timebase.FrameRate25),
			packets: 10,
			readErr: map[int]error{1: bad, 2: bad, 3: bad},
		}
		w := &fakeWriter{tb: timebase.TimeBase90kHz}
		_, err := New(d, w, Options{Input: "in.h264"}).Run(context.Background())
		assert.True(t, apperrors.IsKind(err, apperrors.KindStream))
		assert.Contains(t, err.Error(), "read_packet")
		assert.Len(t, w.packets, 1)
	})
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDemuxer{info: esInfo(timebase.FrameRate25), packets: 10}
	w := &fakeWriter{tb: timebase.TimeBase90kHz}
	_, err := New(d, w, Options{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, w.trailer)
	assert.True(t, w.closed)
	assert.True(t, d.closed)
}

func TestRemuxFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.h264")
	out := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(in, h264test.Stream(h264test.DefaultStream(60)), 0o644))

	var keyframes int
	res, err := RemuxFile(context.Background(), in, out, FileOptions{
		Timescale: 1000,
		Logger:    logger.NullLogger{},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Written)
	assert.Equal(t, 2400*time.Millisecond, res.Duration)

	d, err := mp4.Open(out)
	require.NoError(t, err)
	defer d.Close()

	info := d.Info()
	assert.Equal(t, timebase.Milliseconds, info.TimeBase)
	assert.Equal(t, int64(60), info.FrameCount)
	assert.Equal(t, int64(2400), info.Duration)

	for i := 0; ; i++ {
		pkt, err := d.ReadPacket(context.Background())
		if err == io.EOF {
			assert.Equal(t, 60, i)
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int64(i*40), pkt.PTS)
		if pkt.Keyframe {
			keyframes++
		}
	}
	assert.Equal(t, 3, keyframes)
}

func TestRemuxFileNeedsFrameRate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.h264")
	opts := h264test.DefaultStream(10)
	opts.SPS.TimeScale = 0
	require.NoError(t, os.WriteFile(in, h264test.Stream(opts), 0o644))

	_, err := RemuxFile(context.Background(), in, filepath.Join(dir, "out.mp4"), FileOptions{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis))
	assert.NoFileExists(t, filepath.Join(dir, "out.mp4"))

	res, err := RemuxFile(context.Background(), in, filepath.Join(dir, "out.mp4"), FileOptions{
		FrameRate: timebase.FrameRate30,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Written)
}

func TestRemuxFileOpenErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := RemuxFile(context.Background(), filepath.Join(dir, "missing.h264"), filepath.Join(dir, "out.mp4"), FileOptions{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))

	in := filepath.Join(dir, "clip.h264")
	require.NoError(t, os.WriteFile(in, h264test.Stream(h264test.DefaultStream(5)), 0o644))
	_, err = RemuxFile(context.Background(), in, filepath.Join(dir, "no", "such", "out.mp4"), FileOptions{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindSetup))
}
