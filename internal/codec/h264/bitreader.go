package h264

import (
	"fmt"
)

// BitReader reads RBSP bit fields, MSB first.
type BitReader struct {
	data    []byte
	bitPos  int // 0-7 within the current byte
	bytePos int
}

// NewBitReader creates a reader over an RBSP (emulation prevention bytes
// already removed, see Unescape).
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBit reads a single bit
func (br *BitReader) ReadBit() (uint32, error) {
	if br.bytePos >= len(br.data) {
		return 0, fmt.Errorf("end of data")
	}

	bit := (br.data[br.bytePos] >> (7 - br.bitPos)) & 1
	br.bitPos++
	if br.bitPos == 8 {
		br.bitPos = 0
		br.bytePos++
	}

	return uint32(bit), nil
}

// ReadBits reads n bits, n <= 32.
func (br *BitReader) ReadBits(n int) (uint32, error) {
	if n > 32 || n < 0 {
		return 0, fmt.Errorf("invalid bit count: %d", n)
	}

	if avail := (len(br.data)-br.bytePos)*8 - br.bitPos; avail < n {
		return 0, fmt.Errorf("not enough bits: need %d, have %d", n, avail)
	}

	var result uint32
	for i := 0; i < n; i++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | bit
	}
	return result, nil
}

// ReadUE reads an unsigned Exp-Golomb value.
func (br *BitReader) ReadUE() (uint32, error) {
	leadingZeros := 0
	for {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			break
		}
		leadingZeros++
		if leadingZeros > 31 {
			return 0, fmt.Errorf("too many leading zeros in ue(v)")
		}
	}

	if leadingZeros == 0 {
		return 0, nil
	}

	suffix, err := br.ReadBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return (1 << leadingZeros) - 1 + suffix, nil
}

// ReadSE reads a signed Exp-Golomb value.
func (br *BitReader) ReadSE() (int32, error) {
	ue, err := br.ReadUE()
	if err != nil {
		return 0, err
	}
	if ue%2 == 0 {
		return -int32(ue / 2), nil
	}
	return int32((ue + 1) / 2), nil
}

// Unescape removes emulation prevention bytes (the 0x03 in 00 00 03).
// The input is returned as is when it contains none.
func Unescape(nalu []byte) []byte {
	zeros := 0
	var out []byte
	for i, b := range nalu {
		if zeros >= 2 && b == 0x03 {
			if out == nil {
				out = make([]byte, 0, len(nalu))
				out = append(out, nalu[:i]...)
			}
			zeros = 0
			continue
		}
		if out != nil {
			out = append(out, b)
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	if out == nil {
		return nalu
	}
	return out
}
