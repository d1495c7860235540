// Package h264test builds small, syntactically valid H.264 elementary
// streams for tests. Slice payloads are filler; only the headers the
// player inspects are real.
package h264test

// BitWriter writes MSB-first bit fields.
type BitWriter struct {
	buf  []byte
	cur  byte
	nbit int
}

func (w *BitWriter) WriteBit(b uint32) {
	w.cur = w.cur<<1 | byte(b&1)
	w.nbit++
	if w.nbit == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.nbit = 0, 0
	}
}

func (w *BitWriter) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(v >> uint(i))
	}
}

// WriteUE writes an unsigned Exp-Golomb value.
func (w *BitWriter) WriteUE(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	for i := 0; i < n; i++ {
		w.WriteBit(0)
	}
	for i := n; i >= 0; i-- {
		w.WriteBit(uint32(x >> uint(i)))
	}
}

// WriteSE writes a signed Exp-Golomb value.
func (w *BitWriter) WriteSE(v int32) {
	if v > 0 {
		w.WriteUE(uint32(2*v - 1))
	} else {
		w.WriteUE(uint32(-2 * v))
	}
}

// TrailingBits writes rbsp_trailing_bits and returns the RBSP.
func (w *BitWriter) TrailingBits() []byte {
	w.WriteBit(1)
	for w.nbit != 0 {
		w.WriteBit(0)
	}
	return w.buf
}

// Escape inserts emulation prevention bytes.
func Escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+8)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// SPSOptions describes the SPS to build.
type SPSOptions struct {
	Width, Height int // multiples of 16
	// NumUnitsInTick and TimeScale go into the VUI. Zero TimeScale omits
	// timing information. Frame rate is TimeScale / (2 * NumUnitsInTick).
	NumUnitsInTick uint32
	TimeScale      uint32
}

// SPS builds a baseline profile SPS NAL unit (header byte included).
func SPS(o SPSOptions) []byte {
	w := &BitWriter{}
	w.WriteBits(66, 8) // profile_idc baseline
	w.WriteBits(0, 8)  // constraint flags
	w.WriteBits(30, 8) // level_idc
	w.WriteUE(0)       // seq_parameter_set_id
	w.WriteUE(0)       // log2_max_frame_num_minus4
	w.WriteUE(2)       // pic_order_cnt_type
	w.WriteUE(1)       // max_num_ref_frames
	w.WriteBit(0)      // gaps_in_frame_num_value_allowed_flag
	w.WriteUE(uint32(o.Width/16 - 1))
	w.WriteUE(uint32(o.Height/16 - 1))
	w.WriteBit(1) // frame_mbs_only_flag
	w.WriteBit(1) // direct_8x8_inference_flag
	w.WriteBit(0) // frame_cropping_flag

	if o.TimeScale == 0 {
		w.WriteBit(0) // vui_parameters_present_flag
	} else {
		w.WriteBit(1)
		w.WriteBit(0) // aspect_ratio_info_present_flag
		w.WriteBit(0) // overscan_info_present_flag
		w.WriteBit(0) // video_signal_type_present_flag
		w.WriteBit(0) // chroma_loc_info_present_flag
		w.WriteBit(1) // timing_info_present_flag
		w.WriteBits(o.NumUnitsInTick, 32)
		w.WriteBits(o.TimeScale, 32)
		w.WriteBit(1) // fixed_frame_rate_flag
		w.WriteBit(0) // nal_hrd_parameters_present_flag
		w.WriteBit(0) // vcl_hrd_parameters_present_flag
		w.WriteBit(0) // pic_struct_present_flag
		w.WriteBit(0) // bitstream_restriction_flag
	}

	return append([]byte{0x67}, Escape(w.TrailingBits())...)
}

// PPS builds a minimal PPS NAL unit.
func PPS() []byte {
	w := &BitWriter{}
	w.WriteUE(0)      // pic_parameter_set_id
	w.WriteUE(0)      // seq_parameter_set_id
	w.WriteBit(0)     // entropy_coding_mode_flag
	w.WriteBit(0)     // bottom_field_pic_order_in_frame_present_flag
	w.WriteUE(0)      // num_slice_groups_minus1
	w.WriteUE(0)      // num_ref_idx_l0_default_active_minus1
	w.WriteUE(0)      // num_ref_idx_l1_default_active_minus1
	w.WriteBit(0)     // weighted_pred_flag
	w.WriteBits(0, 2) // weighted_bipred_idc
	w.WriteSE(0)      // pic_init_qp_minus26
	w.WriteSE(0)      // pic_init_qs_minus26
	w.WriteSE(0)      // chroma_qp_index_offset
	w.WriteBit(1)     // deblocking_filter_control_present_flag
	w.WriteBit(0)     // constrained_intra_pred_flag
	w.WriteBit(0)     // redundant_pic_cnt_present_flag
	return append([]byte{0x68}, Escape(w.TrailingBits())...)
}

// Slice slice_type values (the "all slices of the picture" variants).
const (
	SliceTypeP = 5
	SliceTypeB = 6
	SliceTypeI = 7
)

// Slice builds a slice NAL unit. idr selects NAL type 5 (otherwise 1).
func Slice(idr bool, sliceType uint32, firstMB uint32, payload int) []byte {
	header := byte(0x41) // nal_ref_idc 2, type 1
	if idr {
		header = 0x65 // nal_ref_idc 3, type 5
	}

	w := &BitWriter{}
	w.WriteUE(firstMB)
	w.WriteUE(sliceType)
	w.WriteUE(0) // pic_parameter_set_id
	rbsp := w.TrailingBits()
	for i := 0; i < payload; i++ {
		rbsp = append(rbsp, 0xA5)
	}
	return append([]byte{header}, Escape(rbsp)...)
}

// AnnexB joins NAL units with 4-byte start codes.
func AnnexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

// StreamOptions describes a synthetic elementary stream.
type StreamOptions struct {
	SPS    SPSOptions
	Frames int
	// GOP is the keyframe interval in frames. Every keyframe is preceded by
	// SPS and PPS.
	GOP int
	// Payload is the filler size of each slice.
	Payload int
}

// DefaultStream is 320x240 at 25 fps with a keyframe every 25 frames.
func DefaultStream(frames int) StreamOptions {
	return StreamOptions{
		SPS:     SPSOptions{Width: 320, Height: 240, NumUnitsInTick: 1, TimeScale: 50},
		Frames:  frames,
		GOP:     25,
		Payload: 32,
	}
}

// Stream builds an Annex B elementary stream.
func Stream(o StreamOptions) []byte {
	if o.GOP <= 0 {
		o.GOP = o.Frames
	}
	sps, pps := SPS(o.SPS), PPS()

	var out []byte
	for i := 0; i < o.Frames; i++ {
		if i%o.GOP == 0 {
			out = append(out, AnnexB(sps, pps, Slice(true, SliceTypeI, 0, o.Payload))...)
			continue
		}
		out = append(out, AnnexB(Slice(false, SliceTypeP, 0, o.Payload))...)
	}
	return out
}
