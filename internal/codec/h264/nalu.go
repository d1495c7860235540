package h264

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
)

const (
	// MaxNALUnitSize bounds a single NAL unit; larger units are treated as
	// corrupt input.
	MaxNALUnitSize = 16 << 20
	// MaxNALUnitsPerAccessUnit bounds the slices and headers of one picture.
	MaxNALUnitsPerAccessUnit = 1024
)

// Unit is one NAL unit found in an Annex B byte stream.
type Unit struct {
	Type avc.NaluType
	// Offset of the start code in the scanned buffer.
	Offset int
	// Data is the NAL unit without its start code.
	Data []byte
}

// IsVCL reports whether the unit carries coded slice data.
func (u Unit) IsVCL() bool {
	return u.Type >= avc.NALU_NON_IDR && u.Type <= avc.NALU_IDR
}

// ScanUnits finds every start code prefixed NAL unit in data. Trailing
// zero bytes before the next start code are not part of a unit.
func ScanUnits(data []byte) ([]Unit, error) {
	var units []Unit

	i := 0
	for i+3 <= len(data) {
		scLen := startCodeAt(data, i)
		if scLen == 0 {
			i++
			continue
		}

		start := i + scLen
		end := len(data)
		next := len(data)
		for j := start; j+3 <= len(data); j++ {
			if n := startCodeAt(data, j); n > 0 {
				next = j
				end = j
				break
			}
		}
		for end > start && data[end-1] == 0 {
			end--
		}

		if size := end - start; size > 0 {
			if size > MaxNALUnitSize {
				return units, fmt.Errorf("NAL unit at offset %d too large: %d bytes", i, size)
			}
			units = append(units, Unit{
				Type:   avc.GetNaluType(data[start]),
				Offset: i,
				Data:   data[start:end],
			})
		}
		i = next
	}

	return units, nil
}

func startCodeAt(data []byte, i int) int {
	if data[i] != 0 || data[i+1] != 0 {
		return 0
	}
	if data[i+2] == 1 {
		return 3
	}
	if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
		return 4
	}
	return 0
}

// AnnexBToAVCC converts a start code prefixed access unit into 4-byte
// length prefixed sample data. Parameter sets and access unit delimiters
// are dropped; in MP4 they live in the avcC box.
func AnnexBToAVCC(data []byte) []byte {
	nalus := avc.ExtractNalusFromByteStream(data)

	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}

	out := make([]byte, 0, size)
	for _, n := range nalus {
		if len(n) == 0 {
			continue
		}
		switch avc.GetNaluType(n[0]) {
		case avc.NALU_SPS, avc.NALU_PPS, avc.NALU_AUD:
			continue
		}
		l := len(n)
		out = append(out, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		out = append(out, n...)
	}
	return out
}

// AVCCToAnnexB converts length prefixed sample data into an Annex B byte
// stream, optionally preceded by parameter sets.
func AVCCToAnnexB(sample []byte, paramSets ...[]byte) []byte {
	out := make([]byte, 0, len(sample)+64)
	for _, ps := range paramSets {
		out = append(out, 0, 0, 0, 1)
		out = append(out, ps...)
	}

	offset := 0
	for offset+4 <= len(sample) {
		n := int(sample[offset])<<24 | int(sample[offset+1])<<16 |
			int(sample[offset+2])<<8 | int(sample[offset+3])
		offset += 4
		if n < 0 || offset+n > len(sample) {
			break
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, sample[offset:offset+n]...)
		offset += n
	}
	return out
}
