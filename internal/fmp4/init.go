// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fmp4

// buildFtyp emits the ftyp box: major brand mp42, minor version 1,
// compatible brands mp41/mp42/isom/hlsf.
func buildFtyp() []byte {
	b := NewBuilder().
		FourCC("mp42").
		U32(1).
		FourCC("mp41").
		FourCC("mp42").
		FourCC("isom").
		FourCC("hlsf")
	return BoxBuilder("ftyp", b)
}

// buildMoov emits the moov box: mvhd, one trak per track, mvex.
func buildMoov(tracks []TrackConfig) []byte {
	payload := NewBuilder()
	payload.Bytes(buildMvhd(nextTrackID(tracks)))
	for _, t := range tracks {
		payload.Bytes(buildTrak(t))
	}
	payload.Bytes(buildMvex(tracks))
	return BoxBuilder("moov", payload)
}

func nextTrackID(tracks []TrackConfig) uint32 {
	max := uint32(0)
	for _, t := range tracks {
		if t.TrackID > max {
			max = t.TrackID
		}
	}
	return max + 1
}

// buildMvhd emits mvhd version 0: timescale 90000, duration 0 (live),
// rate 1.0, volume 1.0, identity matrix, next_track_id.
func buildMvhd(nextTrackID uint32) []byte {
	b := NewBuilder().
		U8(0).Zeros(3). // version + flags
		U32(0).         // creation_time
		U32(0).         // modification_time
		U32(movieTimescale).
		U32(0).         // duration
		U32(0x00010000). // rate
		U16(0x0100).    // volume
		Zeros(2).       // reserved
		Zeros(8).       // reserved[2]
		Bytes(identityMatrix()).
		Zeros(24).      // pre_defined
		U32(nextTrackID)
	return BoxBuilder("mvhd", b)
}

// identityMatrix returns the standard QuickTime unity transformation
// matrix: a=1, b=0, c=0, d=0, e=1, f=0, g=0, h=0, i=1 in 16.16/2.30 fixed
// point, as nine big-endian u32 values.
func identityMatrix() []byte {
	return NewBuilder().
		U32(0x00010000).U32(0).U32(0).
		U32(0).U32(0x00010000).U32(0).
		U32(0).U32(0).U32(0x40000000).
		Build()
}

func buildTrak(t TrackConfig) []byte {
	payload := NewBuilder().
		Bytes(buildTkhd(t)).
		Bytes(buildMdia(t))
	return BoxBuilder("trak", payload)
}

// buildTkhd emits tkhd version 0, flags 0x000003 (enabled + in-movie).
func buildTkhd(t TrackConfig) []byte {
	volume := uint16(0)
	if t.Kind == Audio {
		volume = 0x0100
	}
	b := NewBuilder().
		U8(0).U8(0).U8(0).U8(3). // version 0, flags 0x000003
		U32(0).                  // creation_time
		U32(0).                  // modification_time
		U32(t.TrackID).
		Zeros(4). // reserved
		U32(0).   // duration
		Zeros(8). // reserved[2]
		U16(0).   // layer
		U16(0).   // alternate_group
		U16(volume).
		Zeros(2). // reserved
		Bytes(identityMatrix()).
		U32(uint32(t.Width) << 16).  // width, 16.16 fixed point
		U32(uint32(t.Height) << 16) // height, 16.16 fixed point
	return BoxBuilder("tkhd", b)
}

func buildMdia(t TrackConfig) []byte {
	payload := NewBuilder().
		Bytes(buildMdhd(t)).
		Bytes(buildHdlr(t)).
		Bytes(buildMinf(t))
	return BoxBuilder("mdia", payload)
}

// buildMdhd emits mdhd version 0, language "und" (0x55C4).
func buildMdhd(t TrackConfig) []byte {
	b := NewBuilder().
		U8(0).Zeros(3).
		U32(0). // creation_time
		U32(0). // modification_time
		U32(t.Timescale).
		U32(0). // duration
		U16(0x55C4).
		U16(0)
	return BoxBuilder("mdhd", b)
}

func buildHdlr(t TrackConfig) []byte {
	handlerType, name := "vide", "VideoHandler\x00"
	if t.Kind == Audio {
		handlerType, name = "soun", "SoundHandler\x00"
	}
	b := NewBuilder().
		U8(0).Zeros(3). // version + flags
		Zeros(4).       // pre_defined
		FourCC(handlerType).
		Zeros(12). // reserved[3]
		Bytes([]byte(name))
	return BoxBuilder("hdlr", b)
}

func buildMinf(t TrackConfig) []byte {
	payload := NewBuilder()
	if t.Kind == Audio {
		payload.Bytes(buildSmhd())
	} else {
		payload.Bytes(buildVmhd())
	}
	payload.Bytes(buildDinf())
	payload.Bytes(buildStbl(t))
	return BoxBuilder("minf", payload)
}

func buildVmhd() []byte {
	b := NewBuilder().U8(0).U8(0).U8(0).U8(1).Zeros(8) // flags=1, graphicsmode+opcolor
	return BoxBuilder("vmhd", b)
}

func buildSmhd() []byte {
	b := NewBuilder().U8(0).Zeros(3).Zeros(4) // balance + reserved
	return BoxBuilder("smhd", b)
}

func buildDinf() []byte {
	url := NewBuilder().U8(0).U8(0).U8(0).U8(1) // flags=0x000001: self-contained
	urlBox := BoxBuilder("url ", url)
	dref := NewBuilder().U8(0).Zeros(3).U32(1).Bytes(urlBox)
	drefBox := BoxBuilder("dref", dref)
	return Box("dinf", drefBox)
}

func buildStbl(t TrackConfig) []byte {
	payload := NewBuilder()
	if t.Kind == Audio {
		payload.Bytes(buildStsdAudio(t))
	} else {
		payload.Bytes(buildStsdVideo(t))
	}
	payload.Bytes(Box("stts", NewBuilder().U8(0).Zeros(3).U32(0).Build()))
	payload.Bytes(Box("stsc", NewBuilder().U8(0).Zeros(3).U32(0).Build()))
	payload.Bytes(Box("stco", NewBuilder().U8(0).Zeros(3).U32(0).Build()))
	payload.Bytes(Box("stsz", NewBuilder().U8(0).Zeros(3).U32(0).U32(0).Build()))
	return BoxBuilder("stbl", payload)
}

// avccProfileCompatLevel returns profile_idc/profile_compatibility/level_idc
// read from SPS bytes 1/2/3, falling back to Baseline 66/0/30 when the SPS
// is too short to contain them.
func avccProfileCompatLevel(sps []byte) (profile, compat, level byte) {
	if len(sps) < 4 {
		return 66, 0, 30
	}
	return sps[1], sps[2], sps[3]
}

func buildAvcC(sps, pps []byte) []byte {
	profile, compat, level := avccProfileCompatLevel(sps)
	b := NewBuilder().
		U8(1). // configurationVersion
		U8(profile).
		U8(compat).
		U8(level).
		U8(0xFF).                       // lengthSizeMinusOne=3, reserved bits set
		U8(0xE1).                       // numOfSequenceParameterSets=1, reserved bits set
		U16(uint16(len(sps))).Bytes(sps).
		U8(0x01).                       // numOfPictureParameterSets=1
		U16(uint16(len(pps))).Bytes(pps)
	return BoxBuilder("avcC", b)
}

func buildStsdVideo(t TrackConfig) []byte {
	avc1Payload := NewBuilder().
		Zeros(6).     // reserved
		U16(1).       // data_reference_index
		U16(0).       // pre_defined
		U16(0).       // reserved
		Zeros(12).    // pre_defined[3]
		U16(t.Width).
		U16(t.Height).
		U32(0x00480000). // horizresolution, 72 dpi
		U32(0x00480000). // vertresolution, 72 dpi
		U32(0).          // reserved
		U16(1).          // frame_count
		Zeros(32).       // compressorname
		U16(0x0018).     // depth
		U16(0xFFFF).     // pre_defined
		Bytes(buildAvcC(t.SPS, t.PPS))
	avc1 := BoxBuilder("avc1", avc1Payload)

	stsd := NewBuilder().U8(0).Zeros(3).U32(1).Bytes(avc1)
	return BoxBuilder("stsd", stsd)
}

// buildStsdAudio is present only so the muxer's track-type abstraction is
// structurally complete; audio is out of scope and this path is never
// exercised by the pipeline.
func buildStsdAudio(t TrackConfig) []byte {
	mp4aPayload := NewBuilder().
		Zeros(6).
		U16(1). // data_reference_index
		Zeros(8).
		U16(uint16(t.Channels)).
		U16(16). // samplesize
		Zeros(4).
		U32(uint32(t.SampleRate) << 16)
	mp4a := BoxBuilder("mp4a", mp4aPayload)
	stsd := NewBuilder().U8(0).Zeros(3).U32(1).Bytes(mp4a)
	return BoxBuilder("stsd", stsd)
}

func buildMvex(tracks []TrackConfig) []byte {
	payload := NewBuilder().Bytes(buildMehd())
	for _, t := range tracks {
		payload.Bytes(buildTrex(t.TrackID))
	}
	return BoxBuilder("mvex", payload)
}

// buildMehd emits mehd version 1, duration 0 (live).
func buildMehd() []byte {
	b := NewBuilder().U8(1).Zeros(3).U64(0)
	return BoxBuilder("mehd", b)
}

func buildTrex(trackID uint32) []byte {
	b := NewBuilder().
		U8(0).Zeros(3).
		U32(trackID).
		U32(1). // default_sample_description_index
		U32(0). // default_sample_duration
		U32(0). // default_sample_size
		U32(0)  // default_sample_flags
	return BoxBuilder("trex", b)
}
