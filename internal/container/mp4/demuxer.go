// Package mp4 reads the video track of MP4 files (progressive or
// fragmented) and writes fragmented MP4.
package mp4

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/NekoSaan/h264Player/internal/codec/h264"
	"github.com/NekoSaan/h264Player/internal/container"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// sample_is_non_sync_sample in ISO/IEC 14496-12 sample flags.
const sampleIsNonSyncFlag = 0x00010000

type sample struct {
	offset uint64
	size   uint32
	data   []byte // fragmented files only
}

// Demuxer serves the samples of the first H.264 video track.
type Demuxer struct {
	path      string
	rs        io.ReadSeeker
	closer    io.Closer
	samples   []sample
	index     container.Index
	paramSets [][]byte
	info      media.StreamInfo
	next      int
}

// Open parses the MP4 file at path.
func Open(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "open", "cannot open input").WithPath(path)
	}

	d, err := NewFromReader(f)
	if err != nil {
		_ = f.Close()
		if e, ok := apperrors.GetError(err); ok {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	d.path = path
	d.closer = f
	return d, nil
}

// NewFromReader parses an MP4 file from rs. Progressive files keep reading
// sample data from rs.
func NewFromReader(rs io.ReadSeeker) (*Demuxer, error) {
	f, err := mp4.DecodeFile(rs)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "open", "cannot parse mp4")
	}

	d := &Demuxer{rs: rs}
	if f.IsFragmented() {
		err = d.loadFragmented(f)
	} else {
		err = d.loadProgressive(f)
	}
	if err != nil {
		return nil, err
	}
	if len(d.samples) == 0 {
		return nil, apperrors.NewSetupError("stream_info", "video track has no samples")
	}

	d.info.FrameCount = int64(len(d.samples))
	d.info.Duration = d.index.Duration()
	if d.info.FrameRate.IsZero() && d.info.Duration > 0 {
		// average rate from the sample table
		d.info.FrameRate = reduce(
			d.info.FrameCount*d.info.TimeBase.Den,
			d.info.Duration*d.info.TimeBase.Num)
	}
	return d, nil
}

func findVideoTrack(traks []*mp4.TrakBox) (*mp4.TrakBox, *mp4.VisualSampleEntryBox) {
	for _, trak := range traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok && vse.AvcC != nil {
				return trak, vse
			}
		}
	}
	return nil, nil
}

// setTrack fills StreamInfo and the parameter sets from the sample entry.
func (d *Demuxer) setTrack(trak *mp4.TrakBox, vse *mp4.VisualSampleEntryBox) error {
	if trak.Mdia.Mdhd == nil || trak.Mdia.Mdhd.Timescale == 0 {
		return apperrors.NewSetupError("stream_info", "video track has no timescale")
	}

	d.info = media.StreamInfo{
		Container: "mp4",
		Codec:     "h264",
		Width:     int(vse.Width),
		Height:    int(vse.Height),
		TimeBase:  timebase.Rational{Num: 1, Den: int64(trak.Mdia.Mdhd.Timescale)},
		SPS:       vse.AvcC.SPSnalus,
		PPS:       vse.AvcC.PPSnalus,
	}

	if len(vse.AvcC.SPSnalus) > 0 {
		if params, err := h264.ParseSPS(vse.AvcC.SPSnalus[0]); err == nil {
			d.info.FrameRate = params.FrameRate
		}
	}

	d.paramSets = append(d.paramSets, vse.AvcC.SPSnalus...)
	d.paramSets = append(d.paramSets, vse.AvcC.PPSnalus...)
	return nil
}

func (d *Demuxer) loadProgressive(f *mp4.File) error {
	if f.Moov == nil {
		return apperrors.NewSetupError("stream_info", "no moov box found")
	}
	trak, vse := findVideoTrack(f.Moov.Traks)
	if trak == nil {
		return apperrors.NewSetupError("stream_info", "no H.264 video track found")
	}
	if err := d.setTrack(trak, vse); err != nil {
		return err
	}

	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil {
		return apperrors.NewSetupError("stream_info", "incomplete sample table")
	}

	var sync map[uint32]bool
	if stbl.Stss != nil {
		sync = make(map[uint32]bool, len(stbl.Stss.SampleNumber))
		for _, nr := range stbl.Stss.SampleNumber {
			sync[nr] = true
		}
	}

	for nr := uint32(1); nr <= stbl.Stsz.SampleNumber; nr++ {
		offset, err := sampleOffset(stbl, nr)
		if err != nil {
			return apperrors.WrapSetupError(err, "stream_info", fmt.Sprintf("sample %d", nr))
		}
		decodeTime, dur := stbl.Stts.GetDecodeTime(nr)

		d.samples = append(d.samples, sample{offset: offset, size: stbl.Stsz.GetSampleSize(int(nr))})
		d.index.Add(container.Entry{
			PTS:      int64(decodeTime),
			Duration: int64(dur),
			Keyframe: sync == nil || sync[nr],
		})
	}
	return nil
}

// sampleOffset locates a sample through its chunk.
func sampleOffset(stbl *mp4.StblBox, nr uint32) (uint64, error) {
	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
	if err != nil {
		return 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var offset uint64
	switch {
	case stbl.Stco != nil:
		offset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr %d out of range", chunkNr)
		}
		offset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}

	for s := uint32(firstSampleInChunk); s < nr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, nil
}

func (d *Demuxer) loadFragmented(f *mp4.File) error {
	if f.Init == nil || f.Init.Moov == nil {
		return apperrors.NewSetupError("stream_info", "fragmented file without init segment")
	}
	trak, vse := findVideoTrack(f.Init.Moov.Traks)
	if trak == nil {
		return apperrors.NewSetupError("stream_info", "no H.264 video track found")
	}
	if err := d.setTrack(trak, vse); err != nil {
		return err
	}

	trackID := trak.Tkhd.TrackID
	var trex *mp4.TrexBox
	if f.Init.Moov.Mvex != nil {
		for _, t := range f.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}

				var decodeTime uint64
				if traf.Tfdt != nil {
					decodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return apperrors.WrapSetupError(err, "stream_info", "cannot read fragment samples")
				}
				for _, s := range samples {
					d.samples = append(d.samples, sample{size: s.Size, data: s.Data})
					d.index.Add(container.Entry{
						PTS:      int64(decodeTime),
						Duration: int64(s.Dur),
						Keyframe: s.Flags&sampleIsNonSyncFlag == 0,
					})
					decodeTime += uint64(s.Dur)
				}
			}
		}
	}
	return nil
}

func (d *Demuxer) Info() media.StreamInfo {
	return d.info
}

// ReadPacket returns the next sample as an Annex B access unit. Keyframes
// carry the track's parameter sets in front.
func (d *Demuxer) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.samples) {
		return nil, io.EOF
	}

	i := d.next
	d.next++

	s := d.samples[i]
	data := s.data
	if data == nil {
		data = make([]byte, s.size)
		if _, err := d.rs.Seek(int64(s.offset), io.SeekStart); err != nil {
			return nil, apperrors.WrapTransientError(err, "read_packet").WithPath(d.path)
		}
		if _, err := io.ReadFull(d.rs, data); err != nil {
			return nil, apperrors.WrapTransientError(err, "read_packet").WithPath(d.path)
		}
	}

	e := d.index.At(i)
	var paramSets [][]byte
	if e.Keyframe {
		paramSets = d.paramSets
	}

	pos := media.UnknownPos
	if s.data == nil {
		pos = int64(s.offset)
	}

	return &media.Packet{
		Data:     h264.AVCCToAnnexB(data, paramSets...),
		PTS:      e.PTS,
		DTS:      e.PTS,
		Duration: e.Duration,
		Pos:      pos,
		Keyframe: e.Keyframe,
		Index:    int64(i),
	}, nil
}

// Seek repositions the demuxer so the next packet is the one Locate picks.
func (d *Demuxer) Seek(ts int64, mode media.SeekMode) error {
	i, ok := d.index.Locate(ts, mode)
	if !ok {
		return apperrors.NewSeekError("empty stream").WithPath(d.path)
	}
	d.next = i
	return nil
}

func (d *Demuxer) Close() error {
	d.samples = nil
	if d.closer != nil {
		c := d.closer
		d.closer = nil
		return c.Close()
	}
	return nil
}

func reduce(num, den int64) timebase.Rational {
	a, b := num, den
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return timebase.Rational{}
	}
	return timebase.Rational{Num: num / a, Den: den / a}
}
