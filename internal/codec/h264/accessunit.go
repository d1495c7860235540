package h264

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
)

// AccessUnit is the byte range of one coded picture in an Annex B stream,
// including the parameter sets and SEI that precede its first slice.
type AccessUnit struct {
	Offset   int
	Size     int
	Keyframe bool
	HasSPS   bool
}

// SplitAccessUnits groups the NAL units of data into pictures. A new
// picture starts at an AUD, SPS, PPS or SEI following slice data, or at a
// slice with first_mb_in_slice == 0 following slice data. Non-VCL units
// with no picture after them are dropped.
func SplitAccessUnits(data []byte) ([]AccessUnit, error) {
	units, err := ScanUnits(data)
	if err != nil {
		return nil, err
	}

	var (
		aus     []AccessUnit
		cur     AccessUnit
		open    bool // cur has at least one unit
		seenVCL bool // cur has slice data
		count   int
	)

	flush := func(end int) {
		if open && seenVCL {
			cur.Size = end - cur.Offset
			aus = append(aus, cur)
		}
	}

	for _, u := range units {
		startNew := false
		switch u.Type {
		case avc.NALU_AUD, avc.NALU_SPS, avc.NALU_PPS, avc.NALU_SEI:
			startNew = seenVCL
		case avc.NALU_NON_IDR, avc.NALU_IDR:
			if seenVCL {
				// An unreadable header is treated as a picture boundary.
				hdr, err := ParseSliceHeader(u.Data)
				startNew = err != nil || hdr.FirstMB == 0
			}
		}

		if startNew && open {
			flush(u.Offset)
			open, seenVCL, count = false, false, 0
		}
		if !open {
			cur = AccessUnit{Offset: u.Offset}
			open = true
		}

		count++
		if count > MaxNALUnitsPerAccessUnit {
			return nil, fmt.Errorf("access unit at offset %d has more than %d NAL units", cur.Offset, MaxNALUnitsPerAccessUnit)
		}

		switch u.Type {
		case avc.NALU_SPS:
			cur.HasSPS = true
		case avc.NALU_IDR:
			cur.Keyframe = true
			seenVCL = true
		case avc.NALU_NON_IDR:
			seenVCL = true
		}
	}
	flush(len(data))

	return aus, nil
}
