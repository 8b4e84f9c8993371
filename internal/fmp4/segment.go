// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fmp4

const (
	syncSampleFlags    = 0x02010000 // depends_on=I-frame, is_depended_on=1, is_sync
	nonSyncSampleFlags = 0x01010001
)

// buildMoof emits mfhd + a single traf for trackID, with trun.data_offset
// computed to point at the first byte of the following mdat's payload
// (moof_size + 8). It also returns the mdat payload length so the caller
// can size that box without a second pass over the samples.
func buildMoof(trackID, sequenceNumber uint32, baseMediaDecodeTime uint64, samples []EncodedSample) ([]byte, int) {
	mfhd := buildMfhd(sequenceNumber)
	tfhd := buildTfhd(trackID)
	tfdt := buildTfdt(baseMediaDecodeTime)
	trun, mdatPayloadLen := buildTrunFixedDurations(samples)

	// Pass 1: traf size with a zero data_offset placeholder (the field's
	// width never changes, so this also IS the final traf size).
	trafPayload := append(append([]byte{}, tfhd...), tfdt...)
	trafPayload = append(trafPayload, trun...)
	trafSize := 8 + len(trafPayload)

	moofSize := 8 + len(mfhd) + trafSize
	dataOffset := uint32(moofSize + 8)

	// Pass 2: re-emit trun now that data_offset is known. Only the
	// data_offset field's value changes; the box's length is identical to
	// the placeholder build above, so moofSize computed in pass 1 remains
	// correct.
	trun, _ = buildTrunWithOffset(samples, dataOffset)
	trafPayload = append(append([]byte{}, tfhd...), tfdt...)
	trafPayload = append(trafPayload, trun...)
	traf := Box("traf", trafPayload)

	moofPayload := append(append([]byte{}, mfhd...), traf...)
	moof := Box("moof", moofPayload)
	return moof, mdatPayloadLen
}

func buildMfhd(sequenceNumber uint32) []byte {
	b := NewBuilder().U8(0).Zeros(3).U32(sequenceNumber)
	return BoxBuilder("mfhd", b)
}

// buildTfhd emits tfhd flags 0x020000 (default-base-is-moof), track_id only.
func buildTfhd(trackID uint32) []byte {
	b := NewBuilder().U8(0).U8(0x02).U8(0x00).U8(0x00).U32(trackID)
	return BoxBuilder("tfhd", b)
}

// buildTfdt emits tfdt version 1 (64-bit baseMediaDecodeTime).
func buildTfdt(baseMediaDecodeTime uint64) []byte {
	b := NewBuilder().U8(1).Zeros(3).U64(baseMediaDecodeTime)
	return BoxBuilder("tfdt", b)
}

// buildTrunFixedDurations builds a trun with data_offset=0, used only to
// measure the traf's true size before the final offset is known. It also
// returns the total sample-data length the mdat will carry.
func buildTrunFixedDurations(samples []EncodedSample) ([]byte, int) {
	return buildTrunWithOffset(samples, 0)
}

// buildTrunWithOffset emits trun flags 0x000701 (data-offset + per-sample
// duration/size/flags), with durations derived from each sample's distance
// to the next sample's DTS (converted to 90 kHz, rounded toward zero); the
// last sample uses its own declared duration.
func buildTrunWithOffset(samples []EncodedSample, dataOffset uint32) ([]byte, int) {
	b := NewBuilder().
		U8(0).U8(0x00).U8(0x07).U8(0x01). // version 0, flags 0x000701
		U32(uint32(len(samples))).
		I32(int32(dataOffset))

	total := 0
	for i, s := range samples {
		var duration int64
		if i < len(samples)-1 {
			duration = toTimescale(samples[i+1].PTS, movieTimescale) - toTimescale(s.PTS, movieTimescale)
		} else {
			duration = toTimescale(s.Duration, movieTimescale)
		}
		if duration < 0 {
			duration = 0
		}

		flags := uint32(nonSyncSampleFlags)
		if s.Keyframe {
			flags = syncSampleFlags
		}

		b.U32(uint32(duration))
		b.U32(uint32(len(s.Data)))
		b.U32(flags)
		total += len(s.Data)
	}
	return BoxBuilder("trun", b), total
}
