// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Message is implemented by each rapic message variant.
type Message interface {
	// Type returns the message type of this variant.
	Type() MessageType

	// Reset returns the message to its default state.
	Reset()

	// Encode appends the wire format of the message to out.
	Encode(out *Buffer) error

	// Decode parses the message at the front of in. It is the caller's
	// responsibility to ensure the variant matches the message currently
	// framed in the buffer, normally by calling ReadDetect first. Decode
	// never advances the buffer.
	Decode(in *Buffer) error
}

func decodeErr(mt MessageType, cause error) error {
	return &DecodeError{Type: mt, Cause: cause}
}

// writeString copies an encoded message into out.
func writeString(out *Buffer, s string) error {
	wa, err := out.WriteAcquire(len(s))
	if err != nil {
		return err
	}
	copy(wa, s)
	return out.WriteAdvance(len(s))
}

// Comment is a comment line starting with a forward slash. It is generally
// only found in rapic files where multiple scans have been concatenated into
// a single volume file, implementing meta-headers such as IMAGE, RXTIME and
// IMAGESIZE. Messages of this type are never sent by radar transmitters over
// the wire.
type Comment struct {
	// Text is the comment line without its leading slash.
	Text string
}

func (m *Comment) Type() MessageType { return MessageComment }

func (m *Comment) Reset() { m.Text = "" }

func (m *Comment) Encode(out *Buffer) error {
	return writeString(out, "/"+m.Text+"\n")
}

func (m *Comment) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	if pos == len(d) || d[pos] != '/' {
		return decodeErr(MessageComment, errors.New("failed to parse message header"))
	}
	pos++

	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessageComment, errors.New("read buffer overflow"))
	}
	m.Text = string(d[pos:eol])
	return nil
}

// Mssg is an administration message. Most message numbers are single line;
// number 30 is multi-line and terminated by an END STATUS line.
type Mssg struct {
	Number int
	Text   string
}

func (m *Mssg) Type() MessageType { return MessageMssg }

func (m *Mssg) Reset() {
	m.Number = -1
	m.Text = ""
}

func (m *Mssg) Encode(out *Buffer) error {
	if m.Number == 30 {
		return writeString(out, fmt.Sprintf("MSSG: %d %s\nEND STATUS\n", m.Number, m.Text))
	}
	return writeString(out, fmt.Sprintf("MSSG: %d %s\n", m.Number, m.Text))
}

func (m *Mssg) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	if !hasPrefixAt(d, pos, msgMssgHead) {
		return decodeErr(MessageMssg, errors.New("failed to parse message header"))
	}
	pos += len(msgMssgHead)

	// read the message number
	pos = findNonWhitespaceOrEOL(d, pos)
	num := pos
	for num < len(d) && d[num] >= '0' && d[num] <= '9' {
		num++
	}
	if num == pos {
		return decodeErr(MessageMssg, errors.New("failed to parse message header"))
	}
	n, err := strconv.Atoi(string(d[pos:num]))
	if err != nil {
		return decodeErr(MessageMssg, err)
	}
	m.Number = n

	// skip whitespace between the number and text
	pos = findNonWhitespaceOrEOL(d, num)
	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessageMssg, errors.New("read buffer overflow"))
	}
	m.Text = string(d[pos:eol])
	pos = eol + 1

	// handle multi-line messages (only #30)
	if m.Number == 30 {
		var text strings.Builder
		text.WriteString(m.Text)
		for {
			if eol = findEOL(d, pos); eol == len(d) {
				return decodeErr(MessageMssg, errors.New("read buffer overflow"))
			}
			if string(d[pos:eol]) == msgMssg30Term {
				break
			}
			text.WriteByte('\n')
			text.Write(d[pos:eol])
			pos = eol + 1
		}
		m.Text = text.String()
	}
	return nil
}

// Status is the RDRSTAT keepalive message. It carries no useful data.
type Status struct {
	Text string
}

func (m *Status) Type() MessageType { return MessageStatus }

func (m *Status) Reset() { m.Text = "" }

func (m *Status) Encode(out *Buffer) error {
	if m.Text == "" {
		return writeString(out, msgKeepalive)
	}
	return writeString(out, "RDRSTAT: "+m.Text+"\n")
}

func (m *Status) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	if !hasPrefixAt(d, pos, msgStatusHead) {
		return decodeErr(MessageStatus, errors.New("failed to parse message header"))
	}
	pos += len(msgStatusHead)

	// skip whitespace between the head and text
	pos = findNonWhitespaceOrEOL(d, pos)
	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessageStatus, errors.New("read buffer overflow"))
	}
	m.Text = string(d[pos:eol])
	return nil
}

// Permcon is the semipermanent connection message sent by a client on
// connect to subscribe to the full data stream.
type Permcon struct {
	// TxCompleteScans requests transmission of complete scans only.
	TxCompleteScans bool
}

func (m *Permcon) Type() MessageType { return MessagePermcon }

func (m *Permcon) Reset() { m.TxCompleteScans = false }

func (m *Permcon) Encode(out *Buffer) error {
	flag := 0
	if m.TxCompleteScans {
		flag = 1
	}
	return writeString(out, fmt.Sprintf(
		"RPQUERY: SEMIPERMANENT CONNECTION - SEND ALL DATA TXCOMPLETESCANS=%d\n", flag))
}

func (m *Permcon) Decode(in *Buffer) error {
	d := in.ReadAcquire()

	pos := findNonWhitespace(d, 0)
	eol := findEOL(d, pos)
	if eol == len(d) {
		return decodeErr(MessagePermcon, errors.New("read buffer overflow"))
	}

	var flag int
	if _, err := fmt.Sscanf(string(d[pos:eol]),
		"RPQUERY: SEMIPERMANENT CONNECTION - SEND ALL DATA TXCOMPLETESCANS=%d", &flag); err != nil {
		return decodeErr(MessagePermcon, errors.New("failed to parse message header"))
	}
	m.TxCompleteScans = flag != 0
	return nil
}
