// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package h264

import (
	"fmt"

	"github.com/jessicalh/rptr/internal/frame"
)

// NAL unit type values used by the pipeline (Annex B, nal_unit_type field).
const (
	NALTypeNonIDRSlice = 1
	NALTypeIDRSlice    = 5
	NALTypeSPS         = 7
	NALTypePPS         = 8
)

// SoftwareBackend is a deterministic, allocation-light Backend used when no
// hardware encoder is wired in (local development, and the test suite). It
// never compresses pixels; it emits syntactically valid baseline-profile
// SPS/PPS and placeholder slice NAL units on the configured cadence, which
// is sufficient to exercise the fMP4 muxer and HLS playlist engine end to
// end. It is never selected when a real backend is available.
type SoftwareBackend struct {
	cfg         BackendConfig
	sps         []byte
	pps         []byte
	frameIndex  int
	forceKey    bool
}

// NewSoftwareBackend returns an unconfigured SoftwareBackend.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{}
}

func (b *SoftwareBackend) Configure(cfg BackendConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FrameRate <= 0 {
		return fmt.Errorf("h264: invalid backend config %+v", cfg)
	}
	b.cfg = cfg
	b.sps = generateBaselineSPS(cfg)
	b.pps = generateBaselinePPS()
	b.frameIndex = 0
	b.forceKey = true // first frame is always a keyframe
	return nil
}

func (b *SoftwareBackend) ForceKeyframe() {
	b.forceKey = true
}

func (b *SoftwareBackend) Encode(raw frame.Raw) ([]Sample, error) {
	if b.cfg.Width == 0 {
		return nil, fmt.Errorf("h264: Encode called before Configure")
	}
	keyframe := b.forceKey || (b.cfg.KeyframeInterval > 0 && b.frameIndex%b.cfg.KeyframeInterval == 0)
	b.forceKey = false
	b.frameIndex++

	var nalUnits [][]byte
	if keyframe {
		nalUnits = append(nalUnits, append([]byte{}, b.sps...), append([]byte{}, b.pps...))
		nalUnits = append(nalUnits, sliceNAL(NALTypeIDRSlice, b.frameIndex))
	} else {
		nalUnits = append(nalUnits, sliceNAL(NALTypeNonIDRSlice, b.frameIndex))
	}

	return []Sample{{
		NALUnits: nalUnits,
		Keyframe: keyframe,
		PTS:      raw.PresentationTime,
		Duration: raw.Duration,
	}}, nil
}

func (b *SoftwareBackend) Flush() ([]Sample, error) { return nil, nil }
func (b *SoftwareBackend) Close() error             { return nil }

// generateBaselineSPS builds a minimal profile=66 SPS without VUI, the
// typical shape a hardware encoder emits before the VUI patch runs.
func generateBaselineSPS(cfg BackendConfig) []byte {
	w := NewBitWriter()
	w.WriteBits(66, 8) // profile_idc: baseline
	w.WriteBits(0x80, 8)
	w.WriteBits(30, 8) // level_idc
	w.WriteUE(0)       // seq_parameter_set_id
	w.WriteUE(0)       // log2_max_frame_num_minus4
	w.WriteUE(2)       // pic_order_cnt_type
	w.WriteUE(1)       // max_num_ref_frames
	w.WriteBit(false)  // gaps_in_frame_num_value_allowed_flag
	w.WriteUE(uint32(cfg.Width/16 - 1))
	w.WriteUE(uint32(cfg.Height/16 - 1))
	w.WriteBit(true) // frame_mbs_only_flag
	w.WriteBit(true) // direct_8x8_inference_flag
	w.WriteBit(false) // frame_cropping_flag
	w.WriteBit(false) // vui_parameters_present_flag
	w.RBSPTrailing()
	return append([]byte{0x67}, escapeRBSP(w.Bytes())...)
}

// generateBaselinePPS builds a minimal picture parameter set pairing with
// generateBaselineSPS.
func generateBaselinePPS() []byte {
	w := NewBitWriter()
	w.WriteUE(0)       // pic_parameter_set_id
	w.WriteUE(0)       // seq_parameter_set_id
	w.WriteBit(false)  // entropy_coding_mode_flag: CAVLC
	w.WriteBit(false)  // bottom_field_pic_order_in_frame_present_flag
	w.WriteUE(0)       // num_slice_groups_minus1
	w.WriteUE(0)       // num_ref_idx_l0_default_active_minus1
	w.WriteUE(0)       // num_ref_idx_l1_default_active_minus1
	w.WriteBit(false)  // weighted_pred_flag
	w.WriteBits(0, 2)  // weighted_bipred_idc
	w.WriteSE(0)       // pic_init_qp_minus26
	w.WriteSE(0)       // pic_init_qs_minus26
	w.WriteSE(0)       // chroma_qp_index_offset
	w.WriteBit(true)   // deblocking_filter_control_present_flag
	w.WriteBit(false)  // constrained_intra_pred_flag
	w.WriteBit(false)  // redundant_pic_cnt_present_flag
	w.RBSPTrailing()
	return append([]byte{0x68}, escapeRBSP(w.Bytes())...)
}

// sliceNAL returns a placeholder slice NAL unit tagging its NAL type and
// frame index, enough to round-trip through the muxer's sample accounting
// without claiming to be a decodable bitstream.
func sliceNAL(nalType byte, frameIndex int) []byte {
	header := byte(0x20 | nalType) // nal_ref_idc=1, nal_unit_type
	payload := []byte{header, byte(frameIndex >> 8), byte(frameIndex)}
	return payload
}
