// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Query is an RPQUERY data request message.
type Query struct {
	// StationID is the requested station (0 = any).
	StationID int
	// ScanType is the requested scan type.
	ScanType ScanType
	// VolumeID is the volume id (-1 = any or not a volume).
	VolumeID int
	// Angle is the selected angle (-1 = default).
	Angle float32
	// RepeatCount is the repeat count (-1 = default).
	RepeatCount int
	// QueryType selects how Time is interpreted (latest by default).
	QueryType QueryType
	// Time is the image time (zero = latest image).
	Time time.Time
	// DataTypes lists the requested moments; empty means all.
	DataTypes []string
	// VideoRes is the requested video resolution (-1 = default).
	VideoRes int
}

func (m *Query) Type() MessageType { return MessageQuery }

func (m *Query) Reset() {
	m.StationID = 0
	m.ScanType = ScanAny
	m.VolumeID = -1
	m.Angle = -1.0
	m.RepeatCount = -1
	m.QueryType = QueryLatest
	m.Time = time.Time{}
	m.DataTypes = nil
	m.VideoRes = -1
}

// scanTypeToken renders a scan type (and optional volume id) the way queries
// and filters carry it on the wire.
func scanTypeToken(st ScanType, volumeID int) string {
	if volumeID != -1 {
		switch st {
		case ScanVolume:
			return fmt.Sprintf("VOLUME%d", volumeID)
		case ScanCompPPI:
			return fmt.Sprintf("COMPPPI%d", volumeID)
		}
	}
	return st.String()
}

func dataTypesToken(types []string) string {
	if len(types) == 0 {
		return ""
	}
	return strings.Join(types, ",")
}

func (m *Query) Encode(out *Buffer) error {
	var when int64
	if !m.Time.IsZero() {
		when = m.Time.Unix()
	}
	return writeString(out, fmt.Sprintf("RPQUERY: %d %s %g %d %s %d %s %d\n",
		m.StationID,
		scanTypeToken(m.ScanType, m.VolumeID),
		m.Angle,
		m.RepeatCount,
		m.QueryType,
		when,
		dataTypesToken(m.DataTypes),
		m.VideoRes))
}

func (m *Query) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	if !hasPrefixAt(d, pos, msgQueryHead) {
		return decodeErr(MessageQuery, errors.New("failed to parse message header"))
	}
	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessageQuery, errors.New("read buffer overflow"))
	}

	fields := strings.Fields(string(d[pos+len(msgQueryHead) : eol]))
	if len(fields) < 7 {
		return decodeErr(MessageQuery, errors.New("failed to parse message header"))
	}

	stn, err := ParseStationID(fields[0])
	if err != nil {
		return decodeErr(MessageQuery, err)
	}
	st, volID, err := ParseScanType(fields[1])
	if err != nil {
		return decodeErr(MessageQuery, err)
	}
	angle, err := strconv.ParseFloat(fields[2], 32)
	if err != nil {
		return decodeErr(MessageQuery, errors.New("invalid query angle"))
	}
	repeat, err := strconv.Atoi(fields[3])
	if err != nil {
		return decodeErr(MessageQuery, errors.New("invalid query repeat count"))
	}
	qt, err := ParseQueryType(fields[4])
	if err != nil {
		return decodeErr(MessageQuery, err)
	}
	when, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return decodeErr(MessageQuery, errors.New("invalid query time"))
	}

	m.StationID = stn
	m.ScanType = st
	m.VolumeID = volID
	m.Angle = float32(angle)
	m.RepeatCount = repeat
	m.QueryType = qt
	if when != 0 {
		m.Time = time.Unix(when, 0).UTC()
	} else {
		m.Time = time.Time{}
	}
	m.DataTypes = ParseDataTypes(fields[6])

	// the video resolution is not always transmitted
	m.VideoRes = -1
	if len(fields) > 7 {
		vr, err := strconv.Atoi(fields[7])
		if err != nil {
			return decodeErr(MessageQuery, errors.New("invalid query video resolution"))
		}
		m.VideoRes = vr
	}
	return nil
}

// Filter is an RPFILTER subscription message limiting which products a
// server transmits on a semipermanent connection.
type Filter struct {
	// StationID is the filtered station (-1 = all).
	StationID int
	// ScanType is the filtered scan type.
	ScanType ScanType
	// VolumeID is the volume id (-1 = any or not a volume).
	VolumeID int
	// VideoRes is the requested video resolution (-1 = whatever is available).
	VideoRes int
	// Source is the data source identifier (unused, normally -1).
	Source string
	// DataTypes lists the moments to retrieve; empty means all available.
	DataTypes []string
}

func (m *Filter) Type() MessageType { return MessageFilter }

func (m *Filter) Reset() {
	m.StationID = 0
	m.ScanType = ScanAny
	m.VolumeID = -1
	m.VideoRes = -1
	m.Source = ""
	m.DataTypes = nil
}

func (m *Filter) Encode(out *Buffer) error {
	return writeString(out, fmt.Sprintf("RPFILTER:%d:%s:%d:%s:%s\n",
		m.StationID,
		scanTypeToken(m.ScanType, m.VolumeID),
		m.VideoRes,
		m.Source,
		dataTypesToken(m.DataTypes)))
}

func (m *Filter) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	if !hasPrefixAt(d, pos, msgFilterHead) {
		return decodeErr(MessageFilter, errors.New("failed to parse message header"))
	}
	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessageFilter, errors.New("read buffer overflow"))
	}

	parts := strings.SplitN(string(d[pos+len(msgFilterHead):eol]), ":", 5)
	if len(parts) != 5 {
		return decodeErr(MessageFilter, errors.New("failed to parse message header"))
	}

	stn, err := ParseStationID(parts[0])
	if err != nil {
		return decodeErr(MessageFilter, err)
	}
	st, volID, err := ParseScanType(parts[1])
	if err != nil {
		return decodeErr(MessageFilter, err)
	}
	vr, err := strconv.Atoi(parts[2])
	if err != nil {
		return decodeErr(MessageFilter, errors.New("invalid filter video resolution"))
	}

	m.StationID = stn
	m.ScanType = st
	m.VolumeID = volID
	m.VideoRes = vr
	m.Source = parts[3]
	m.DataTypes = ParseDataTypes(strings.TrimRight(parts[4], " "))
	return nil
}
