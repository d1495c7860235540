package h264

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"

	"github.com/NekoSaan/h264Player/internal/media"
)

// SliceType is slice_type modulo 5.
type SliceType uint32

const (
	SliceP  SliceType = 0
	SliceB  SliceType = 1
	SliceI  SliceType = 2
	SliceSP SliceType = 3
	SliceSI SliceType = 4
)

func (s SliceType) String() string {
	switch s {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	default:
		return fmt.Sprintf("slice(%d)", uint32(s))
	}
}

// SliceHeader holds the leading fields of a slice header.
type SliceHeader struct {
	FirstMB uint32
	Type    SliceType
	PPSID   uint32
}

// ParseSliceHeader reads first_mb_in_slice, slice_type and
// pic_parameter_set_id from a VCL NAL unit (header byte included).
func ParseSliceHeader(nalu []byte) (SliceHeader, error) {
	if len(nalu) < 2 {
		return SliceHeader{}, fmt.Errorf("slice NAL unit too short: %d bytes", len(nalu))
	}
	if t := avc.GetNaluType(nalu[0]); t != avc.NALU_NON_IDR && t != avc.NALU_IDR {
		return SliceHeader{}, fmt.Errorf("NAL unit type %d is not a slice", t)
	}

	// The fields sit in the first few bytes; unescaping a short prefix is enough.
	prefix := nalu[1:]
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	br := NewBitReader(Unescape(prefix))

	firstMB, err := br.ReadUE()
	if err != nil {
		return SliceHeader{}, fmt.Errorf("first_mb_in_slice: %w", err)
	}
	sliceType, err := br.ReadUE()
	if err != nil {
		return SliceHeader{}, fmt.Errorf("slice_type: %w", err)
	}
	if sliceType > 9 {
		return SliceHeader{}, fmt.Errorf("invalid slice_type %d", sliceType)
	}
	ppsID, err := br.ReadUE()
	if err != nil {
		return SliceHeader{}, fmt.Errorf("pic_parameter_set_id: %w", err)
	}

	return SliceHeader{FirstMB: firstMB, Type: SliceType(sliceType % 5), PPSID: ppsID}, nil
}

// FrameTypeOf maps the slice types of a picture to a frame type. A picture
// is as "weak" as its weakest slice: any B slice makes it B, any P slice P.
func FrameTypeOf(idr bool, slices []SliceType) media.FrameType {
	if idr {
		return media.FrameTypeIDR
	}
	if len(slices) == 0 {
		return media.FrameTypeUnknown
	}

	ft := media.FrameTypeI
	for _, s := range slices {
		switch s {
		case SliceB:
			return media.FrameTypeB
		case SliceP, SliceSP:
			ft = media.FrameTypeP
		}
	}
	return ft
}
