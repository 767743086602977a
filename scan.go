// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fnan is the sentinel for absent angles in headers and ray headers.
var fnan = float32(math.NaN())

// Header is a single NAME:value pair from a scan message. Names contain no
// colon or control bytes; values may contain spaces but no control bytes.
type Header struct {
	Name  string
	Value string
}

// GetBoolean interprets the header value as a boolean.
func (h *Header) GetBoolean() (bool, error) {
	switch strings.ToLower(h.Value) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return false, errors.Errorf("bad boolean value for header %s", h.Name)
}

// GetInteger interprets the header value as a base 10 integer.
func (h *Header) GetInteger() (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
	if err != nil {
		return 0, errors.Errorf("bad integer value for header %s", h.Name)
	}
	return v, nil
}

// GetReal interprets the header value as a real number.
func (h *Header) GetReal() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(h.Value), 64)
	if err != nil {
		return 0, errors.Errorf("bad real value for header %s", h.Name)
	}
	return v, nil
}

// GetIntegerArray interprets the header value as a whitespace separated
// integer array.
func (h *Header) GetIntegerArray() ([]int64, error) {
	fields := strings.Fields(h.Value)
	ret := make([]int64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.Errorf("bad integer value for header %s", h.Name)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// GetRealArray interprets the header value as a whitespace separated real
// array.
func (h *Header) GetRealArray() ([]float64, error) {
	fields := strings.Fields(h.Value)
	ret := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Errorf("bad real value for header %s", h.Name)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// RayHeader holds the information about a single ray. Rays arrive from the
// wire in transmission order, which is not necessarily sorted by angle.
type RayHeader struct {
	// Azimuth is the angle at the center of the ray's angular extent
	// (degrees).
	Azimuth float32
	// Elevation is the elevation at the center of this ray (degrees), or NaN
	// when the encoding does not carry one.
	Elevation float32
	// TimeOffset is the offset from the start of scan to this ray (seconds),
	// or -1 when the encoding does not carry one.
	TimeOffset int
}

// Scan is a radar product message: a single sweep at one elevation (PPI) or
// one azimuth (RHI), decoded from its compact wire encoding into an
// addressable ray/bin array.
type Scan struct {
	headers    []Header
	rayHeaders []RayHeader
	rays       int
	bins       int
	levelData  []byte

	// these are cached from the headers due to likelihood of frequent access
	stationID int
	volumeID  int
	product   string
	pass      int
	passCount int
	isRHI     bool
	angleMin  float32
	angleMax  float32
	angleRes  float32
}

func (s *Scan) Type() MessageType { return MessageScan }

func (s *Scan) Reset() {
	s.headers = s.headers[:0]
	s.rayHeaders = s.rayHeaders[:0]
	s.rays = 0
	s.bins = 0
	s.levelData = nil

	s.stationID = -1
	s.volumeID = -1
	s.product = ""
	s.pass = -1
	s.passCount = -1
	s.isRHI = false
	s.angleMin = fnan
	s.angleMax = fnan
	s.angleRes = fnan
}

// StationID returns the station identifier.
func (s *Scan) StationID() int { return s.stationID }

// VolumeID returns the volume identifier, or -1 if there is none.
func (s *Scan) VolumeID() int { return s.volumeID }

// Product returns the product string. This value is normally unique to each
// complete product which is built from multiple scan messages; for example a
// volume product contains many passes which each share this string.
func (s *Scan) Product() string { return s.product }

// Pass returns the pass number, or -1 if unavailable.
func (s *Scan) Pass() int { return s.pass }

// PassCount returns the number of passes in the containing product, or -1 if
// unavailable.
func (s *Scan) PassCount() int { return s.passCount }

// IsRHI reports whether the scan is a range height indicator sweep.
func (s *Scan) IsRHI() bool { return s.isRHI }

// AngleMin returns the minimum angle for the scan. This is normally 0 for a
// complete sweep, or taken from the SECTOR product header otherwise.
func (s *Scan) AngleMin() float32 { return s.angleMin }

// AngleMax returns the maximum angle for the scan. This is normally 360 for
// a complete sweep, or taken from the SECTOR product header otherwise.
func (s *Scan) AngleMax() float32 { return s.angleMax }

// AngleResolution returns the angular sweep width of a single ray.
func (s *Scan) AngleResolution() float32 { return s.angleRes }

// Headers returns all scan headers in wire order, including those which are
// exposed explicitly via other accessors.
func (s *Scan) Headers() []Header { return s.headers }

// RayHeaders returns the per-ray information in wire arrival order.
func (s *Scan) RayHeaders() []RayHeader { return s.rayHeaders }

// Rays returns the number of rays (rows) in the level data array.
func (s *Scan) Rays() int { return s.rays }

// Bins returns the number of bins (columns) in the level data array.
func (s *Scan) Bins() int { return s.bins }

// LevelData returns the scan data encoded as levels, row-major rays by bins.
func (s *Scan) LevelData() []byte { return s.levelData }

// FindHeader returns the first header with the given name, or nil if the
// header is not present.
func (s *Scan) FindHeader(name string) *Header {
	for i := range s.headers {
		if s.headers[i].Name == name {
			return &s.headers[i]
		}
	}
	return nil
}

// SetHeaders replaces the scan headers, for use when building a scan for
// transmission.
func (s *Scan) SetHeaders(headers []Header) { s.headers = headers }

// SetRayData installs the ray headers and level data for transmission. The
// level data must be len(rayHeaders) rows of bins columns.
func (s *Scan) SetRayData(rayHeaders []RayHeader, bins int, levelData []byte) {
	s.rayHeaders = rayHeaders
	s.rays = len(rayHeaders)
	s.bins = bins
	s.levelData = levelData
}

func (s *Scan) headerString(name string) (string, error) {
	if h := s.FindHeader(name); h != nil {
		return h.Value, nil
	}
	return "", errors.Errorf("missing mandatory header %s", name)
}

func (s *Scan) headerInteger(name string) (int64, error) {
	if h := s.FindHeader(name); h != nil {
		return h.GetInteger()
	}
	return 0, errors.Errorf("missing mandatory header %s", name)
}

func (s *Scan) headerReal(name string) (float64, error) {
	if h := s.FindHeader(name); h != nil {
		return h.GetReal()
	}
	return 0, errors.Errorf("missing mandatory header %s", name)
}

// initializeRays materializes the scan geometry from the headers seen so
// far. It runs immediately before the first ray is appended.
func (s *Scan) initializeRays() error {
	stn, err := s.headerInteger("STNID")
	if err != nil {
		return err
	}
	s.stationID = int(stn)

	if h := s.FindHeader("VOLUMEID"); h != nil {
		id, err := h.GetInteger()
		if err != nil {
			return err
		}
		s.volumeID = int(id)
	}

	if s.product, err = s.headerString("PRODUCT"); err != nil {
		return err
	}

	if h := s.FindHeader("PASS"); h != nil {
		if _, err := fmt.Sscanf(h.Value, "%d of %d", &s.pass, &s.passCount); err != nil {
			return errors.New("invalid PASS header")
		}
	}

	imgfmt, err := s.headerString("IMGFMT")
	if err != nil {
		return err
	}
	s.isRHI = imgfmt == "RHI"

	// the mandatory characteristics needed to determine the scan structure
	angres, err := s.headerReal("ANGRES")
	if err != nil {
		return err
	}
	s.angleRes = float32(angres)
	rngres, err := s.headerReal("RNGRES")
	if err != nil {
		return err
	}
	startrng, err := s.headerReal("STARTRNG")
	if err != nil {
		return err
	}
	endrng, err := s.headerReal("ENDRNG")
	if err != nil {
		return err
	}

	// if start/end angles are provided, use them to limit our ray count
	var a1, a2 float32
	var kind, label string
	inc := 1
	if n, _ := fmt.Sscanf(s.product, "%s %s SECTOR ANGLE1=%f ANGLE2=%f ANGLEINCREASING=%d",
		&kind, &label, &a1, &a2, &inc); n == 5 {
		if inc == 0 {
			a1, a2 = a2, a1
		}
		for a2 <= a1 {
			a2 += 360.0
		}
		s.angleMin, s.angleMax = a1, a2
	} else {
		s.angleMin, s.angleMax = 0.0, 360.0
	}

	span := float64(s.angleMax - s.angleMin)
	s.rays = int(math.Round(span / angres))
	if math.Remainder(span, angres) > 0.001 {
		return errors.New("ANGRES is not a factor of sweep length")
	}

	s.bins = int(math.Round((endrng - startrng) / rngres))
	if s.bins < 0 || math.Remainder(endrng-startrng, rngres) > 0.001 {
		return errors.New("RNGRES is not a factor of range span")
	}

	s.rayHeaders = make([]RayHeader, 0, s.rays)
	s.levelData = make([]byte, s.rays*s.bins)
	return nil
}

// Decode parses a scan message. On failure the error carries the identifying
// header fields observed before the failure and the nested cause.
func (s *Scan) Decode(in *Buffer) error {
	if err := s.decode(in.ReadAcquire()); err != nil {
		return &DecodeError{Type: MessageScan, Context: scanContext(s), Cause: err}
	}
	return nil
}

func (s *Scan) decode(d []byte) error {
	s.Reset()

	for pos := 0; pos < len(d); pos++ {
		next := d[pos]

		switch {
		// ascii encoded ray
		case next == '%':
			pos++
			n, err := s.decodeASCIIRay(d, pos)
			if err != nil {
				return err
			}
			pos = n

		// binary encoded ray
		case next == '@':
			pos++
			n, err := s.decodeBinaryRay(d, pos)
			if err != nil {
				return err
			}
			pos = n

		// header field
		case next > ' ':
			// find the end of the header name
			pos2 := pos + 1
			for pos2 < len(d) && d[pos2] >= ' ' && d[pos2] != ':' {
				pos2++
			}

			// check for end of scan or corruption
			if pos2 >= len(d) || d[pos2] != ':' {
				if string(d[pos:pos2]) == msgScanTerm {
					return nil
				}
				return errors.New("corrupt scan detected (missing header delimiter)")
			}

			// find the start of the header value
			pos3 := pos2 + 1
			for pos3 < len(d) && d[pos3] <= ' ' {
				pos3++
			}
			if pos3 == len(d) {
				return errors.New("corrupt scan detected (truncated header)")
			}

			// find the end of the header value; spaces are valid characters
			// within a value
			pos4 := pos3 + 1
			for pos4 < len(d) && d[pos4] >= ' ' {
				pos4++
			}

			s.headers = append(s.headers, Header{
				Name:  string(d[pos:pos2]),
				Value: string(d[pos3:pos4]),
			})
			pos = pos4

		default:
			// whitespace - skip
		}
	}

	return errors.New("corrupt scan detected (no terminator)")
}

// beginRay allocates geometry on the first ray and checks ray count limits.
func (s *Scan) beginRay() error {
	if len(s.rayHeaders) == 0 {
		if err := s.initializeRays(); err != nil {
			return err
		}
	}
	if len(s.rayHeaders) == s.rays {
		return errors.New("scan data overflow (too many rays)")
	}
	return nil
}

// decodeASCIIRay decodes a '%' ray starting just after the marker and
// returns the index of the last consumed byte.
func (s *Scan) decodeASCIIRay(d []byte, pos int) (int, error) {
	if err := s.beginRay(); err != nil {
		return 0, err
	}

	// the header is the angle as 3 ascii digits, or 4 for an RHI
	hlen := 3
	if s.isRHI {
		hlen = 4
	}
	if pos+hlen >= len(d) {
		return 0, errors.New("corrupt scan detected (truncated ascii ray)")
	}
	angle, err := strconv.ParseFloat(strings.TrimSpace(string(d[pos:pos+hlen])), 32)
	if err != nil {
		return 0, errors.New("invalid ascii ray header")
	}
	pos += hlen

	s.rayHeaders = append(s.rayHeaders, RayHeader{
		Azimuth:    float32(angle),
		Elevation:  fnan,
		TimeOffset: -1,
	})

	// decode the data into levels
	out := s.levelData[s.bins*(len(s.rayHeaders)-1) : s.bins*len(s.rayHeaders)]
	prev := 0
	bin := 0
	for pos < len(d) {
		cur := &lookup[d[pos]]
		pos++

		switch cur.kind {
		// absolute pixel value
		case encValue:
			if bin >= s.bins {
				return 0, errors.New("scan data overflow (ascii abs)")
			}
			prev = int(cur.val)
			out[bin] = byte(prev)
			bin++

		// run length encoding of the previous value
		case encDigit:
			count := int(cur.val)
			for pos < len(d) && lookup[d[pos]].kind == encDigit {
				count = count*10 + int(lookup[d[pos]].val)
				pos++
			}
			if bin+count > s.bins {
				return 0, errors.New("scan data overflow (ascii rle)")
			}
			for i := 0; i < count; i++ {
				out[bin] = byte(prev)
				bin++
			}

		// delta encoding
		// silently ignore potential overflow caused by the second half of a
		// delta at end of ray; it is an artefact of the encoding process
		case encDelta:
			if bin >= s.bins {
				return 0, errors.New("scan data overflow (ascii delta)")
			}
			prev += int(cur.val)
			out[bin] = byte(prev)
			bin++

			if bin < s.bins {
				prev += int(cur.val2)
				out[bin] = byte(prev)
				bin++
			} else if pos < len(d) && lookup[d[pos]].kind != encTerminate {
				return 0, errors.New("scan data overflow (ascii delta)")
			}

		// null or end of line character - end of radial
		case encTerminate:
			/* work around extra newline characters that corrupt the data
			 * stream of some radars. if headers ever appear in the stream
			 * after rays then this will break. */
			i := findNonWhitespace(d, pos)
			if i < len(d) && d[i] != '%' && d[i] != '@' &&
				len(d)-i >= len(msgScanTerm) && !hasPrefixAt(d, i, msgScanTerm) {
				continue
			}
			return pos - 1, nil

		default:
			return 0, errors.New("invalid character encountered in ray encoding")
		}
	}
	return pos, nil
}

// decodeBinaryRay decodes an '@' ray starting just after the marker and
// returns the index of the last consumed byte.
func (s *Scan) decodeBinaryRay(d []byte, pos int) (int, error) {
	if err := s.beginRay(); err != nil {
		return 0, err
	}

	// the 18 byte ray header carries the angles, the time offset and a two
	// byte ray length which we ignore
	if pos+binaryRayHeaderLen >= len(d) {
		return 0, errors.New("corrupt scan detected (truncated binary ray)")
	}
	var azi, el float32
	var sec int
	if _, err := fmt.Sscanf(string(d[pos:pos+binaryRayHeaderLen]), "%f,%f,%d=", &azi, &el, &sec); err != nil {
		return 0, errors.New("invalid binary ray header")
	}
	pos += binaryRayHeaderLen

	s.rayHeaders = append(s.rayHeaders, RayHeader{
		Azimuth:    azi,
		Elevation:  el,
		TimeOffset: sec,
	})

	// decode the data into levels
	out := s.levelData[s.bins*(len(s.rayHeaders)-1) : s.bins*len(s.rayHeaders)]
	bin := 0
	for {
		if pos >= len(d) {
			return 0, errors.New("corrupt scan detected (truncated binary ray)")
		}
		val := d[pos]
		pos++
		if val == 0 || val == 1 {
			if pos >= len(d) {
				return 0, errors.New("corrupt scan detected (truncated binary ray)")
			}
			count := int(d[pos])
			pos++
			if count == 0 {
				break
			}
			if bin+count > s.bins {
				return 0, errors.New("scan data overflow (binary rle)")
			}
			for i := 0; i < count; i++ {
				out[bin] = val
				bin++
			}
		} else if bin < s.bins {
			out[bin] = val
			bin++
		} else {
			return 0, errors.New("scan data overflow (binary abs)")
		}
	}
	return pos - 1, nil
}

// binaryRayHeaderLen is the encoded size of a binary ray header after the
// '@' marker: "aaa.a,eee.e,sss=" plus the two length bytes.
const binaryRayHeaderLen = 18

// Encode writes the scan in wire format. Rays are encoded in the video
// resolution named by the VIDRES header: 16, 32, 64 and 160 level scans use
// the ASCII encoding, 256 level scans use the binary encoding.
func (s *Scan) Encode(out *Buffer) error {
	// worst case is a 256 level ray alternating levels 0 and 1
	limit := 0
	for i := range s.headers {
		limit += len(s.headers[i].Name) + len(s.headers[i].Value) + 2
	}
	limit += s.rays * (s.bins*2 + binaryRayHeaderLen + 4)
	limit += len(msgScanTerm) + 3

	wa, err := out.WriteAcquire(limit)
	if err != nil {
		return err
	}
	pos := 0

	// write the headers
	for i := range s.headers {
		pos += copy(wa[pos:], s.headers[i].Name)
		wa[pos] = ':'
		pos++
		pos += copy(wa[pos:], s.headers[i].Value)
		wa[pos] = '\n'
		pos++
	}

	// determine the video resolution
	vidres := int64(160)
	if h := s.FindHeader("VIDRES"); h != nil {
		if vidres, err = h.GetInteger(); err != nil {
			return err
		}
	}

	switch vidres {
	case 16, 32, 64, 160:
		for ray := 0; ray < s.rays; ray++ {
			n, err := s.encodeASCIIRay(wa[pos:], ray)
			if err != nil {
				return err
			}
			pos += n
		}
	case 256:
		for ray := 0; ray < s.rays; ray++ {
			pos += s.encodeBinaryRay(wa[pos:], ray)
		}
	default:
		return errors.New("rapic: unsupported video resolution")
	}

	// write the terminator
	pos += copy(wa[pos:], msgScanTerm)
	wa[pos] = '\n'
	pos++

	return out.WriteAdvance(pos)
}

// encodeASCIIRay writes one '%' ray, run length encoding repeated levels.
func (s *Scan) encodeASCIIRay(w []byte, ray int) (int, error) {
	var pos int
	if s.isRHI {
		pos = copy(w, fmt.Sprintf("%%%04d", int(s.rayHeaders[ray].Azimuth+0.5)))
	} else {
		pos = copy(w, fmt.Sprintf("%%%03d", int(s.rayHeaders[ray].Azimuth+0.5)))
	}

	data := s.levelData[s.bins*ray : s.bins*(ray+1)]
	bin := 0
	for bin < s.bins {
		val := data[bin]
		if int(val) >= len(levelByte) {
			return 0, errors.New("rapic: level exceeds ascii encoding range")
		}
		run := 1
		for bin+run < s.bins && data[bin+run] == val {
			run++
		}
		w[pos] = levelByte[val]
		pos++
		if run > 1 {
			// a digit sequence emits that many further copies of the level
			pos += copy(w[pos:], strconv.Itoa(run-1))
		}
		bin += run
	}

	w[pos] = '\n'
	pos++
	return pos, nil
}

// encodeBinaryRay writes one '@' ray, run length encoding levels 0 and 1.
func (s *Scan) encodeBinaryRay(w []byte, ray int) int {
	rh := &s.rayHeaders[ray]
	sec := rh.TimeOffset
	if sec < 0 {
		sec = 0
	}
	pos := copy(w, fmt.Sprintf("@%05.1f,%05.1f,%03d=", rh.Azimuth, rh.Elevation, sec))

	// leave space for the count
	lenPos := pos
	pos += 2

	data := s.levelData[s.bins*ray : s.bins*(ray+1)]
	bin := 0
	for bin < s.bins {
		val := data[bin]
		if val == 0 || val == 1 {
			count := 1
			for bin+count < s.bins && count < 255 && data[bin+count] == val {
				count++
			}
			w[pos] = val
			w[pos+1] = byte(count)
			pos += 2
			bin += count
		} else {
			w[pos] = val
			pos++
			bin++
		}
	}
	w[pos] = 0
	w[pos+1] = 0
	pos += 2

	// fill the count now that we know what it is. the masking faithfully
	// reproduces the reference encoder; all known decoders ignore the field.
	rayLen := pos - lenPos - 2
	w[lenPos] = byte(rayLen>>8) & 0x0f
	w[lenPos+1] = byte(rayLen) & 0x0f

	return pos
}
