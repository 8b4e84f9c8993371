// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package h264

// profilesWithChromaInfo lists profile_idc values for which the SPS carries
// chroma_format_idc and the bit-depth/scaling-matrix fields, per Table 7.3.2.1.1.
var profilesWithChromaInfo = map[uint32]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

// PatchSPS injects minimal VUI timing parameters into an SPS NAL unit (NAL
// header byte included) so Safari's native HLS demuxer accepts the stream.
// It parses the RBSP up to vui_parameters_present_flag, mirroring every
// parsed field into a fresh bitstream, then appends a minimal VUI carrying
// only timing_info and the mandatory trailing bits.
//
// PatchSPS is idempotent: an SPS whose vui_parameters_present_flag is
// already set is returned unchanged. On any parse error it returns the
// original bytes; callers should log a warning in that case (Safari
// compatibility degrades, other clients are unaffected).
func PatchSPS(original []byte, frameRate float64) []byte {
	if len(original) < 4 || frameRate <= 0 {
		return original
	}
	nalHeader := original[0]
	rbsp := unescapeRBSP(original[1:])

	prefix, alreadyHasVUI, err := spsPrefix(rbsp)
	if err != nil {
		return original
	}
	if alreadyHasVUI {
		return original
	}

	w := prefix

	w.WriteBit(true) // vui_parameters_present_flag

	w.WriteBit(false) // aspect_ratio_info_present_flag
	w.WriteBit(false) // overscan_info_present_flag
	w.WriteBit(false) // video_signal_type_present_flag
	w.WriteBit(false) // chroma_loc_info_present_flag

	w.WriteBit(true)               // timing_info_present_flag
	w.WriteBits(1, 32)             // num_units_in_tick
	timeScale := uint32(2 * frameRate) // time_scale = 2 * frame_rate
	w.WriteBits(timeScale, 32)
	w.WriteBit(true) // fixed_frame_rate_flag

	w.WriteBit(false) // nal_hrd_parameters_present_flag
	w.WriteBit(false) // vcl_hrd_parameters_present_flag
	w.WriteBit(false) // pic_struct_present_flag
	w.WriteBit(false) // bitstream_restriction_flag

	w.RBSPTrailing()

	patched := append([]byte{nalHeader}, escapeRBSP(w.Bytes())...)
	return patched
}

// spsPrefix parses an SPS RBSP from profile_idc through
// frame_cropping (inclusive), mirroring every consumed field into a
// BitWriter, then reports whether vui_parameters_present_flag is set. When
// it is set, the returned prefix is unusable (the caller returns the
// original bytes unchanged) and only the bool matters.
func spsPrefix(rbsp []byte) (prefix *BitWriter, vuiPresent bool, err error) {
	r := NewBitReader(rbsp)
	w := NewBitWriter()

	profileIDC, err := mirrorBits(r, w, 8)
	if err != nil {
		return nil, false, err
	}
	for i := 0; i < 8; i++ { // constraint_setN_flag x6 + reserved_zero_2bits
		if _, err := mirrorBit(r, w); err != nil {
			return nil, false, err
		}
	}
	if _, err := mirrorBits(r, w, 8); err != nil { // level_idc
		return nil, false, err
	}
	if _, err := mirrorUE(r, w); err != nil { // seq_parameter_set_id
		return nil, false, err
	}

	chromaFormatIDC := uint32(1)
	if profilesWithChromaInfo[profileIDC] {
		chromaFormatIDC, err = mirrorUE(r, w)
		if err != nil {
			return nil, false, err
		}
		if chromaFormatIDC == 3 {
			if _, err := mirrorBit(r, w); err != nil { // separate_colour_plane_flag
				return nil, false, err
			}
		}
		if _, err := mirrorUE(r, w); err != nil { // bit_depth_luma_minus8
			return nil, false, err
		}
		if _, err := mirrorUE(r, w); err != nil { // bit_depth_chroma_minus8
			return nil, false, err
		}
		if _, err := mirrorBit(r, w); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, false, err
		}
		scalingMatrixPresent, err := mirrorBit(r, w)
		if err != nil {
			return nil, false, err
		}
		if scalingMatrixPresent {
			count := 8
			if chromaFormatIDC == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present, err := mirrorBit(r, w)
				if err != nil {
					return nil, false, err
				}
				if present {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := mirrorScalingList(r, w, size); err != nil {
						return nil, false, err
					}
				}
			}
		}
	}

	if _, err := mirrorUE(r, w); err != nil { // log2_max_frame_num_minus4
		return nil, false, err
	}
	picOrderCntType, err := mirrorUE(r, w)
	if err != nil {
		return nil, false, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := mirrorUE(r, w); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nil, false, err
		}
	case 1:
		if _, err := mirrorBit(r, w); err != nil { // delta_pic_order_always_zero_flag
			return nil, false, err
		}
		if _, err := mirrorSE(r, w); err != nil { // offset_for_non_ref_pic
			return nil, false, err
		}
		if _, err := mirrorSE(r, w); err != nil { // offset_for_top_to_bottom_field
			return nil, false, err
		}
		numRefFrames, err := mirrorUE(r, w)
		if err != nil {
			return nil, false, err
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, err := mirrorSE(r, w); err != nil { // offset_for_ref_frame[i]
				return nil, false, err
			}
		}
	}

	if _, err := mirrorUE(r, w); err != nil { // max_num_ref_frames
		return nil, false, err
	}
	if _, err := mirrorBit(r, w); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, false, err
	}
	if _, err := mirrorUE(r, w); err != nil { // pic_width_in_mbs_minus1
		return nil, false, err
	}
	if _, err := mirrorUE(r, w); err != nil { // pic_height_in_map_units_minus1
		return nil, false, err
	}
	frameMBSOnly, err := mirrorBit(r, w)
	if err != nil {
		return nil, false, err
	}
	if !frameMBSOnly {
		if _, err := mirrorBit(r, w); err != nil { // mb_adaptive_frame_field_flag
			return nil, false, err
		}
	}
	if _, err := mirrorBit(r, w); err != nil { // direct_8x8_inference_flag
		return nil, false, err
	}
	frameCropping, err := mirrorBit(r, w)
	if err != nil {
		return nil, false, err
	}
	if frameCropping {
		for i := 0; i < 4; i++ {
			if _, err := mirrorUE(r, w); err != nil {
				return nil, false, err
			}
		}
	}

	vui, err := r.ReadBit() // vui_parameters_present_flag (not mirrored: caller decides)
	if err != nil {
		return nil, false, err
	}
	return w, vui, nil
}

func mirrorBits(r *BitReader, w *BitWriter, n int) (uint32, error) {
	v, err := r.ReadBits(n)
	if err != nil {
		return 0, err
	}
	w.WriteBits(v, n)
	return v, nil
}

func mirrorBit(r *BitReader, w *BitWriter) (bool, error) {
	v, err := r.ReadBit()
	if err != nil {
		return false, err
	}
	w.WriteBit(v)
	return v, nil
}

func mirrorUE(r *BitReader, w *BitWriter) (uint32, error) {
	v, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	w.WriteUE(v)
	return v, nil
}

func mirrorSE(r *BitReader, w *BitWriter) (int32, error) {
	v, err := r.ReadSE()
	if err != nil {
		return 0, err
	}
	w.WriteSE(v)
	return v, nil
}

func mirrorScalingList(r *BitReader, w *BitWriter, size int) error {
	lastScale, nextScale := int32(8), int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta, err := mirrorSE(r, w)
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// unescapeRBSP strips H.264 emulation-prevention bytes (the 0x03 inserted
// after any 0x0000 sequence followed by a byte <= 0x03) to recover the raw
// bit sequence the SPS syntax is defined over.
func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeroRun := 0
	for i := 0; i < len(data); i++ {
		if zeroRun >= 2 && data[i] == 0x03 && (i+1 >= len(data) || data[i+1] <= 0x03) {
			zeroRun = 0
			continue
		}
		out = append(out, data[i])
		if data[i] == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return out
}

// escapeRBSP reinserts emulation-prevention 0x03 bytes so the RBSP is safe
// to embed as a NAL's EBSP payload.
func escapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/3+1)
	zeroRun := 0
	for i := 0; i < len(data); i++ {
		if zeroRun >= 2 && data[i] <= 0x03 {
			out = append(out, 0x03)
			zeroRun = 0
		}
		out = append(out, data[i])
		if data[i] == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return out
}
