// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate independently re-parses emitted init and media segments
// and cross-checks the invariants spec.md §8 requires of them, without
// reusing any of the muxer's own construction code. It backs the
// /debug/validate diagnostic route.
package validate

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// box is one top-level or nested ISO BMFF box as re-parsed from raw bytes.
type box struct {
	Type    string
	Payload []byte
}

// parseBoxes walks data as a flat sequence of {size,type,payload} boxes,
// the way property #1 requires: sizes must sum to len(data).
func parseBoxes(data []byte) ([]box, error) {
	var out []box
	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("validate: truncated box header at offset %d", offset)
		}
		size := binary.BigEndian.Uint32(data[offset : offset+4])
		typ := string(data[offset+4 : offset+8])
		if size < 8 || int(size) > len(data)-offset {
			return nil, fmt.Errorf("validate: box %q at offset %d has invalid size %d", typ, offset, size)
		}
		out = append(out, box{Type: typ, Payload: data[offset+8 : offset+int(size)]})
		offset += int(size)
	}
	if offset != len(data) {
		return nil, fmt.Errorf("validate: box sizes sum to %d, want %d", offset, len(data))
	}
	return out, nil
}

// findChild returns the first immediate child box of the given type within
// payload, reusing parseBoxes so the search never assumes a specific
// sibling order.
func findChild(payload []byte, typ string) (box, bool) {
	children, err := parseBoxes(payload)
	if err != nil {
		return box{}, false
	}
	for _, c := range children {
		if c.Type == typ {
			return c, true
		}
	}
	return box{}, false
}

// InitReport summarizes an independently re-parsed init segment.
type InitReport struct {
	Errors     []string
	Brands     []string
	TrackCount int
	TrackID    uint32
	SPSCount   int
	PPSCount   int
}

// Init re-parses an init segment (ftyp+moov) and reports structural
// findings. It never reuses the muxer's box builder.
func Init(data []byte) InitReport {
	var report InitReport
	top, err := parseBoxes(data)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	for _, b := range top {
		switch b.Type {
		case "ftyp":
			report.Brands = parseFtypBrands(b.Payload)
		case "moov":
			report.TrackCount, report.TrackID, report.SPSCount, report.PPSCount = inspectMoov(b.Payload)
		}
	}
	return report
}

func parseFtypBrands(payload []byte) []string {
	if len(payload) < 8 {
		return nil
	}
	brands := []string{string(payload[0:4])} // major brand
	for i := 8; i+4 <= len(payload); i += 4 {
		brands = append(brands, string(payload[i:i+4]))
	}
	return brands
}

func inspectMoov(moov []byte) (trackCount int, firstTrackID uint32, spsCount, ppsCount int) {
	children, err := parseBoxes(moov)
	if err != nil {
		return
	}
	for _, c := range children {
		if c.Type != "trak" {
			continue
		}
		trackCount++
		if tkhd, ok := findChild(c.Payload, "tkhd"); ok && len(tkhd.Payload) >= 16 {
			version := tkhd.Payload[0]
			idOffset := 12
			if version == 1 {
				idOffset = 20
			}
			if len(tkhd.Payload) >= idOffset+4 {
				id := binary.BigEndian.Uint32(tkhd.Payload[idOffset : idOffset+4])
				if firstTrackID == 0 {
					firstTrackID = id
				}
			}
		}
		spsCount, ppsCount = countParameterSets(c.Payload)
	}
	return
}

// countParameterSets walks down trak/mdia/minf/stbl/stsd/avc1/avcC and
// counts the numSPS/numPPS fields avcC declares.
func countParameterSets(trak []byte) (sps, pps int) {
	mdia, ok := findChild(trak, "mdia")
	if !ok {
		return 0, 0
	}
	minf, ok := findChild(mdia, "minf")
	if !ok {
		return 0, 0
	}
	stbl, ok := findChild(minf, "stbl")
	if !ok {
		return 0, 0
	}
	stsd, ok := findChild(stbl, "stsd")
	if !ok || len(stsd.Payload) < 8 {
		return 0, 0
	}
	avc1, ok := findChild(stsd.Payload[8:], "avc1")
	if !ok || len(avc1.Payload) < 78 {
		return 0, 0
	}
	avcC, ok := findChild(avc1.Payload[78:], "avcC")
	if !ok || len(avcC.Payload) < 6 {
		return 0, 0
	}
	numSPS := int(avcC.Payload[5] & 0x1F)
	idx := 6
	for i := 0; i < numSPS && idx+2 <= len(avcC.Payload); i++ {
		l := int(binary.BigEndian.Uint16(avcC.Payload[idx : idx+2]))
		idx += 2 + l
	}
	if idx >= len(avcC.Payload) {
		return numSPS, 0
	}
	numPPS := int(avcC.Payload[idx])
	return numSPS, numPPS
}

// MediaReport summarizes an independently re-parsed media segment.
type MediaReport struct {
	Errors       []string
	SequenceNum  uint32
	BaseDecodeTime uint64
	SampleCount  int
	DataOffset   uint32
	MdatOffset   int // byte offset of mdat's payload start within the segment
	MdatLen      int
}

// Media re-parses a moof+mdat media segment and reports the fields
// property #1 (box sizes), #2 (tfdt), and the trun.data_offset invariant
// depend on.
func Media(data []byte) MediaReport {
	var report MediaReport
	top, err := parseBoxes(data)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	if len(top) != 2 || top[0].Type != "moof" || top[1].Type != "mdat" {
		report.Errors = append(report.Errors, fmt.Sprintf("expected exactly [moof, mdat], got %v", boxTypes(top)))
		return report
	}

	moof := top[0]
	mdatHeaderLen := 8
	report.MdatOffset = len(moof.Payload) + 8 + mdatHeaderLen
	report.MdatLen = len(top[1].Payload)

	traf, ok := findChild(moof.Payload, "traf")
	if !ok {
		report.Errors = append(report.Errors, "moof missing traf")
		return report
	}
	if mfhd, ok := findChild(moof.Payload, "mfhd"); ok && len(mfhd.Payload) >= 8 {
		report.SequenceNum = binary.BigEndian.Uint32(mfhd.Payload[4:8])
	}
	if tfdt, ok := findChild(traf.Payload, "tfdt"); ok && len(tfdt.Payload) >= 12 {
		report.BaseDecodeTime = binary.BigEndian.Uint64(tfdt.Payload[4:12])
	}
	if trun, ok := findChild(traf.Payload, "trun"); ok && len(trun.Payload) >= 8 {
		report.SampleCount = int(binary.BigEndian.Uint32(trun.Payload[4:8]))
		if len(trun.Payload) >= 12 {
			report.DataOffset = binary.BigEndian.Uint32(trun.Payload[8:12])
		}
	}
	return report
}

func boxTypes(boxes []box) []string {
	out := make([]string, len(boxes))
	for i, b := range boxes {
		out[i] = b.Type
	}
	return out
}

// Report renders a human-readable diagnostic combining an Init and a
// Media re-parse, the shape the /debug/validate HTTP route returns.
func Report(initData, mediaData []byte) string {
	var b strings.Builder

	b.WriteString("init segment:\n")
	if initData == nil {
		b.WriteString("  not yet published\n")
	} else {
		ir := Init(initData)
		fmt.Fprintf(&b, "  brands: %v\n", ir.Brands)
		fmt.Fprintf(&b, "  tracks: %d (first track_id=%d)\n", ir.TrackCount, ir.TrackID)
		fmt.Fprintf(&b, "  sps_count=%d pps_count=%d\n", ir.SPSCount, ir.PPSCount)
		for _, e := range ir.Errors {
			fmt.Fprintf(&b, "  ERROR: %s\n", e)
		}
	}

	b.WriteString("latest media segment:\n")
	if mediaData == nil {
		b.WriteString("  none finalized yet\n")
	} else {
		mr := Media(mediaData)
		fmt.Fprintf(&b, "  sequence_number=%d base_media_decode_time=%d sample_count=%d\n", mr.SequenceNum, mr.BaseDecodeTime, mr.SampleCount)
		fmt.Fprintf(&b, "  trun.data_offset=%d (mdat payload starts at byte %d)\n", mr.DataOffset, mr.MdatOffset)
		if int(mr.DataOffset) != mr.MdatOffset {
			fmt.Fprintf(&b, "  ERROR: data_offset mismatch: got %d, want %d\n", mr.DataOffset, mr.MdatOffset)
		}
		for _, e := range mr.Errors {
			fmt.Fprintf(&b, "  ERROR: %s\n", e)
		}
	}

	return b.String()
}

// Validate implements origin.Validator.
type Validate struct{}

// Validate renders the diagnostic report; satisfies origin.Validator.
func (Validate) Validate(initSegment, latestMediaSegment []byte) string {
	return Report(initSegment, latestMediaSegment)
}
