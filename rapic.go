// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultBufferSize is the initial size of a client read buffer.
	DefaultBufferSize = 1024
	// DefaultMaxBufferSize is the largest a client read buffer may grow.
	DefaultMaxBufferSize = 10 * 1024 * 1024
	// DefaultKeepalivePeriod is the time between keepalive transmissions.
	DefaultKeepalivePeriod = 40 * time.Second
	// DefaultPollTimeout is the default blocking time for Poll.
	DefaultPollTimeout = 10 * time.Second
)

// wire literals used for framing and connection management
const (
	msgConnect     = "RPQUERY: SEMIPERMANENT CONNECTION - SEND ALL DATA TXCOMPLETESCANS=0\n"
	msgKeepalive   = "RDRSTAT:\n"
	msgCommentHead = "/"
	msgMssgHead    = "MSSG:"
	msgMssg30Head  = "MSSG: 30"
	msgMssg30Term  = "END STATUS"
	msgStatusHead  = "RDRSTAT:"
	msgPermconHead = "RPQUERY: SEMIPERMANENT CONNECTION"
	msgQueryHead   = "RPQUERY:"
	msgFilterHead  = "RPFILTER:"
	msgScanTerm    = "END RADAR IMAGE"
)

// MessageType identifies the concrete type of a framed rapic message.
type MessageType int

const (
	// MessageComment is a comment line starting with '/' (used for IMAGE
	// headers in volume files).
	MessageComment MessageType = iota
	// MessageMssg is an administration message (MSSG).
	MessageMssg
	// MessageStatus is a status message (RDRSTAT) used as a keepalive.
	MessageStatus
	// MessagePermcon is a semipermanent connection message.
	MessagePermcon
	// MessageQuery is a data request message (RPQUERY).
	MessageQuery
	// MessageFilter is a filter specification message (RPFILTER).
	MessageFilter
	// MessageScan is a rapic scan message.
	MessageScan

	// noMessage marks the absence of a dequeued message.
	noMessage MessageType = -1
)

func (mt MessageType) String() string {
	switch mt {
	case MessageComment:
		return "comment"
	case MessageMssg:
		return "mssg"
	case MessageStatus:
		return "status"
	case MessagePermcon:
		return "permcon"
	case MessageQuery:
		return "query"
	case MessageFilter:
		return "filter"
	case MessageScan:
		return "scan"
	}
	return "unknown"
}

// ScanType enumerates the scan types used by queries and filters.
// The numeric values match those sent by Rowlf servers.
type ScanType int

const (
	ScanAny       ScanType = -1
	ScanPPI       ScanType = 0
	ScanRHI       ScanType = 1
	ScanCompPPI   ScanType = 2
	ScanImage     ScanType = 3
	ScanVolume    ScanType = 4
	ScanRHISet    ScanType = 5
	ScanMerge     ScanType = 6
	ScanScanError ScanType = 7
)

func (st ScanType) String() string {
	switch st {
	case ScanAny:
		return "ANY"
	case ScanPPI:
		return "PPI"
	case ScanRHI:
		return "RHI"
	case ScanCompPPI:
		return "CompPPI"
	case ScanImage:
		return "IMAGE"
	case ScanVolume:
		return "VOLUME"
	case ScanRHISet:
		return "RHI_SET"
	case ScanMerge:
		return "MERGE"
	case ScanScanError:
		return "SCAN_ERROR"
	}
	return "unknown"
}

// QueryType enumerates the query types, largely unused in practice.
type QueryType int

const (
	QueryLatest QueryType = iota
	QueryToTime
	QueryFromTime
	QueryCenterTime
)

func (qt QueryType) String() string {
	switch qt {
	case QueryLatest:
		return "LATEST"
	case QueryToTime:
		return "TOTIME"
	case QueryFromTime:
		return "FROMTIME"
	case QueryCenterTime:
		return "CENTRETIME"
	}
	return "unknown"
}

// ParseStationID parses a station identifier token. "ANY" and "0" both mean
// any station.
func ParseStationID(in string) (int, error) {
	if strings.EqualFold(in, "ANY") {
		return 0, nil
	}
	ret, err := strconv.Atoi(in)
	if err != nil || (ret == 0 && (len(in) == 0 || in[0] != '0')) {
		return 0, errors.New("rapic: invalid station id")
	}
	return ret, nil
}

// ParseScanType parses a scan type token in any of its string, numeric or
// indexed (VOLUMEnn, COMPPPInn) forms. The second return value is the volume
// id, or -1 when the token carries none.
func ParseScanType(in string) (ScanType, int, error) {
	if len(in) > 0 && in[0] >= '0' && in[0] <= '9' {
		val, err := strconv.Atoi(in)
		if err != nil || val < -1 || val > 7 {
			return ScanAny, -1, errors.New("rapic: invalid scan type")
		}
		return ScanType(val), -1, nil
	}

	for _, st := range []ScanType{
		ScanAny, ScanPPI, ScanRHI, ScanCompPPI, ScanImage,
		ScanVolume, ScanRHISet, ScanMerge, ScanScanError,
	} {
		if strings.EqualFold(in, st.String()) {
			return st, -1, nil
		}
	}
	if strings.EqualFold(in, "VOL") {
		return ScanVolume, -1, nil
	}

	// indexed VOLUMEnn / COMPPPInn identifiers
	if id, ok := parseIndexed(in, "VOLUME"); ok {
		return ScanVolume, id, nil
	}
	if id, ok := parseIndexed(in, "COMPPPI"); ok {
		return ScanCompPPI, id, nil
	}

	return ScanAny, -1, errors.New("rapic: invalid scan type id")
}

func parseIndexed(in, prefix string) (int, bool) {
	if len(in) <= len(prefix) || !strings.EqualFold(in[:len(prefix)], prefix) {
		return 0, false
	}
	id, err := strconv.Atoi(in[len(prefix):])
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseQueryType parses a query type token.
func ParseQueryType(in string) (QueryType, error) {
	for _, qt := range []QueryType{QueryLatest, QueryToTime, QueryFromTime, QueryCenterTime} {
		if strings.EqualFold(in, qt.String()) {
			return qt, nil
		}
	}
	return QueryLatest, errors.New("rapic: invalid query type")
}

// ParseDataTypes splits a comma separated moment list. Empty elements are
// dropped; an empty input yields an empty list.
func ParseDataTypes(in string) []string {
	ret := make([]string, 0, 4)
	for _, tok := range strings.Split(in, ",") {
		if tok != "" {
			ret = append(ret, tok)
		}
	}
	return ret
}

// byte scanning helpers shared by the framer and the message decoders

func findNonWhitespace(d []byte, i int) int {
	for i < len(d) && d[i] <= 0x20 {
		i++
	}
	return i
}

func findNonWhitespaceOrEOL(d []byte, i int) int {
	for i < len(d) && d[i] <= 0x20 && d[i] != '\n' && d[i] != '\r' && d[i] != 0 {
		i++
	}
	return i
}

func findEOL(d []byte, i int) int {
	for i < len(d) && d[i] != '\n' && d[i] != '\r' && d[i] != 0 {
		i++
	}
	return i
}

func hasPrefixAt(d []byte, i int, literal string) bool {
	if len(d)-i < len(literal) {
		return false
	}
	return string(d[i:i+len(literal)]) == literal
}
