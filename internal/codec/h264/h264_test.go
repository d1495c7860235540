package h264

import (
	"testing"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NekoSaan/h264Player/internal/codec/h264/h264test"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

func TestBitReader(t *testing.T) {
	w := &h264test.BitWriter{}
	w.WriteBits(0x5, 3)
	w.WriteUE(0)
	w.WriteUE(7)
	w.WriteSE(-3)
	w.WriteSE(2)
	br := NewBitReader(w.TrailingBits())

	v, err := br.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)

	ue, err := br.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ue)

	ue, err = br.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ue)

	se, err := br.ReadSE()
	require.NoError(t, err)
	assert.Equal(t, int32(-3), se)

	se, err = br.ReadSE()
	require.NoError(t, err)
	assert.Equal(t, int32(2), se)

	_, err = br.ReadBits(33)
	assert.Error(t, err)
	_, err = br.ReadBits(16)
	assert.Error(t, err)
}

func TestUnescape(t *testing.T) {
	in := []byte{0x11, 0, 0, 3, 1, 0, 0, 3, 0}
	assert.Equal(t, []byte{0x11, 0, 0, 1, 0, 0, 0}, Unescape(in))

	plain := []byte{1, 2, 3}
	assert.Equal(t, plain, Unescape(plain))
}

func TestScanUnits(t *testing.T) {
	sps := h264test.SPS(h264test.SPSOptions{Width: 320, Height: 240, NumUnitsInTick: 1, TimeScale: 50})
	data := h264test.AnnexB(sps, h264test.PPS())
	// 3-byte start code and trailing zero padding
	data = append(data, 0, 0, 0, 0, 1)
	data = append(data, h264test.Slice(true, h264test.SliceTypeI, 0, 4)...)

	units, err := ScanUnits(data)
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, avc.NALU_SPS, units[0].Type)
	assert.Equal(t, 0, units[0].Offset)
	assert.Equal(t, sps, units[0].Data)
	assert.Equal(t, avc.NALU_PPS, units[1].Type)
	assert.Equal(t, avc.NALU_IDR, units[2].Type)
	assert.True(t, units[2].IsVCL())
	assert.False(t, units[0].IsVCL())

	units, err = ScanUnits([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestParseSliceHeader(t *testing.T) {
	tests := []struct {
		name    string
		nalu    []byte
		want    SliceHeader
		wantErr bool
	}{
		{
			name: "idr I slice",
			nalu: h264test.Slice(true, h264test.SliceTypeI, 0, 8),
			want: SliceHeader{FirstMB: 0, Type: SliceI},
		},
		{
			name: "P slice second in picture",
			nalu: h264test.Slice(false, h264test.SliceTypeP, 40, 8),
			want: SliceHeader{FirstMB: 40, Type: SliceP},
		},
		{
			name: "B slice",
			nalu: h264test.Slice(false, h264test.SliceTypeB, 0, 0),
			want: SliceHeader{Type: SliceB},
		},
		{
			name:    "not a slice",
			nalu:    h264test.PPS(),
			wantErr: true,
		},
		{
			name:    "too short",
			nalu:    []byte{0x65},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSliceHeader(tt.nalu)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameTypeOf(t *testing.T) {
	assert.Equal(t, media.FrameTypeIDR, FrameTypeOf(true, []SliceType{SliceI}))
	assert.Equal(t, media.FrameTypeI, FrameTypeOf(false, []SliceType{SliceI, SliceSI}))
	assert.Equal(t, media.FrameTypeP, FrameTypeOf(false, []SliceType{SliceI, SliceP}))
	assert.Equal(t, media.FrameTypeB, FrameTypeOf(false, []SliceType{SliceP, SliceB}))
	assert.Equal(t, media.FrameTypeUnknown, FrameTypeOf(false, nil))
	assert.Equal(t, "SP", SliceSP.String())
}

func TestParseSPS(t *testing.T) {
	p, err := ParseSPS(h264test.SPS(h264test.SPSOptions{Width: 320, Height: 240, NumUnitsInTick: 1, TimeScale: 50}))
	require.NoError(t, err)
	assert.Equal(t, 320, p.Width)
	assert.Equal(t, 240, p.Height)
	assert.Equal(t, uint32(66), p.Profile)
	assert.Equal(t, timebase.Rational{Num: 25, Den: 1}, p.FrameRate)

	p, err = ParseSPS(h264test.SPS(h264test.SPSOptions{Width: 640, Height: 480, NumUnitsInTick: 1001, TimeScale: 60000}))
	require.NoError(t, err)
	assert.Equal(t, timebase.Rational{Num: 30000, Den: 1001}, p.FrameRate)

	p, err = ParseSPS(h264test.SPS(h264test.SPSOptions{Width: 176, Height: 144}))
	require.NoError(t, err)
	assert.True(t, p.FrameRate.IsZero())

	_, err = ParseSPS([]byte{0x67})
	assert.Error(t, err)
}

func TestSplitAccessUnits(t *testing.T) {
	opts := h264test.DefaultStream(6)
	opts.GOP = 3
	data := h264test.Stream(opts)

	aus, err := SplitAccessUnits(data)
	require.NoError(t, err)
	require.Len(t, aus, 6)

	for i, au := range aus {
		assert.Equal(t, i%3 == 0, au.Keyframe, "frame %d", i)
		assert.Equal(t, i%3 == 0, au.HasSPS, "frame %d", i)
		if i > 0 {
			assert.Equal(t, aus[i-1].Offset+aus[i-1].Size, au.Offset, "contiguous")
		}
	}
	assert.Equal(t, len(data), aus[5].Offset+aus[5].Size)
}

func TestSplitAccessUnitsMultiSlice(t *testing.T) {
	data := h264test.AnnexB(
		h264test.Slice(true, h264test.SliceTypeI, 0, 4),
		h264test.Slice(true, h264test.SliceTypeI, 20, 4),
		h264test.Slice(false, h264test.SliceTypeP, 0, 4),
		h264test.Slice(false, h264test.SliceTypeP, 20, 4),
		// trailing parameter sets with no picture are dropped
		h264test.PPS(),
	)

	aus, err := SplitAccessUnits(data)
	require.NoError(t, err)
	require.Len(t, aus, 2)
	assert.True(t, aus[0].Keyframe)
	assert.False(t, aus[1].Keyframe)
}

func TestAVCCRoundTrip(t *testing.T) {
	sps := h264test.SPS(h264test.SPSOptions{Width: 320, Height: 240})
	pps := h264test.PPS()
	idr := h264test.Slice(true, h264test.SliceTypeI, 0, 16)

	avcc := AnnexBToAVCC(h264test.AnnexB(sps, pps, idr))
	require.Len(t, avcc, 4+len(idr), "parameter sets are dropped")
	assert.Equal(t, idr, avcc[4:])

	annexB := AVCCToAnnexB(avcc, sps, pps)
	assert.Equal(t, h264test.AnnexB(sps, pps, idr), annexB)

	// truncated length prefix is ignored
	assert.Empty(t, AVCCToAnnexB([]byte{0, 0, 0, 9, 1}))
}

func TestDecoder(t *testing.T) {
	opts := h264test.DefaultStream(4)
	opts.GOP = 2
	data := h264test.Stream(opts)
	aus, err := SplitAccessUnits(data)
	require.NoError(t, err)

	packet := func(i int) *media.Packet {
		au := aus[i]
		return &media.Packet{Data: data[au.Offset : au.Offset+au.Size], PTS: int64(i) * 3600, Index: int64(i)}
	}

	dec := NewDecoder(timebase.TimeBase90kHz, StreamParams{})

	f, err := dec.Decode(packet(0))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, media.FrameTypeIDR, f.Type)
	assert.True(t, f.Keyframe)
	assert.Equal(t, 320, f.Width, "in-band SPS updates params")
	assert.Equal(t, int64(0), f.PTS)
	assert.Equal(t, timebase.TimeBase90kHz, f.TimeBase)

	f, err = dec.Decode(packet(1))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, media.FrameTypeP, f.Type)
	assert.Equal(t, int64(3600), f.PTS)

	// After a flush inter frames are dropped until the next keyframe.
	dec.Flush()
	f, err = dec.Decode(packet(1))
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, int64(1), dec.Skipped())

	f, err = dec.Decode(packet(2))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.Keyframe)
	assert.Equal(t, int64(3), dec.Decoded())
}

func TestDecoderErrors(t *testing.T) {
	dec := NewDecoder(timebase.TimeBase90kHz, StreamParams{})

	_, err := dec.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = dec.Decode(&media.Packet{Data: []byte{0xde, 0xad}})
	assert.ErrorIs(t, err, ErrNoNALUnits)

	// parameter sets alone produce no frame
	f, err := dec.Decode(&media.Packet{Data: h264test.AnnexB(h264test.PPS())})
	assert.NoError(t, err)
	assert.Nil(t, f)

	// a slice whose header cannot be read
	_, err = dec.Decode(&media.Packet{Data: h264test.AnnexB([]byte{0x65, 0x00})})
	assert.Error(t, err)
}

func TestDecoderSyncSampleCountsAsKeyframe(t *testing.T) {
	dec := NewDecoder(timebase.TimeBase90kHz, StreamParams{Width: 64, Height: 64})
	pkt := &media.Packet{
		Data:     h264test.AnnexB(h264test.Slice(false, h264test.SliceTypeI, 0, 4)),
		Keyframe: true,
	}
	f, err := dec.Decode(pkt)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, media.FrameTypeI, f.Type)
	assert.Equal(t, 64, f.Width)
}
