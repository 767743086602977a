// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import "github.com/pkg/errors"

// Buffer is a resizable byte queue with separate read and write positions
// used to frame the rapic message stream. Writers acquire a contiguous slice
// with WriteAcquire, fill some prefix of it and commit with WriteAdvance.
// Readers inspect the unread span with ReadAcquire or ReadDetect and consume
// with ReadAdvance.
type Buffer struct {
	data    []byte
	wpos    int
	rpos    int
	maxSize int
}

// NewBuffer allocates a buffer of the given initial size which may grow on
// demand up to maxSize.
func NewBuffer(size, maxSize int) *Buffer {
	if maxSize < size {
		maxSize = size
	}
	return &Buffer{data: make([]byte, size), maxSize: maxSize}
}

// Size returns the current capacity of the buffer.
func (b *Buffer) Size() int { return len(b.data) }

// Clear discards any unread contents of the buffer.
func (b *Buffer) Clear() {
	b.wpos = 0
	b.rpos = 0
}

// Resize changes the buffer capacity, preserving the unread span. The
// reallocation occurs even when the capacity is reduced.
func (b *Buffer) Resize(size int) error {
	if size < b.wpos-b.rpos {
		return errors.New("rapic: buffer resize would corrupt data stream")
	}
	if size == len(b.data) {
		return nil
	}
	tmp := make([]byte, size)
	copy(tmp, b.data[b.rpos:b.wpos])
	b.wpos -= b.rpos
	b.rpos = 0
	b.data = tmp
	return nil
}

// Optimize shifts unread data to the front of the buffer.
func (b *Buffer) Optimize() {
	if b.rpos != 0 {
		copy(b.data, b.data[b.rpos:b.wpos])
		b.wpos -= b.rpos
		b.rpos = 0
	}
}

// WriteAcquire returns a contiguous slice at the write position with space
// for at least minSpace bytes, compacting or growing the buffer as needed.
// Growth doubles the capacity (or extends to fit, whichever is larger) and is
// capped at the maximum size.
func (b *Buffer) WriteAcquire(minSpace int) ([]byte, error) {
	space := len(b.data) - b.wpos
	if space < minSpace {
		minSize := b.wpos - b.rpos + minSpace
		if minSize > b.maxSize {
			return nil, errors.Wrap(ErrBufferOverflow, "rapic: allocating requested write space")
		}
		if space+b.rpos < minSpace {
			size := len(b.data) * 2
			if size < minSize {
				size = minSize
			}
			if size > b.maxSize {
				size = b.maxSize
			}
			if err := b.Resize(size); err != nil {
				return nil, err
			}
		} else {
			b.Optimize()
		}
	} else if space == 0 {
		/* if minSpace is 0 and wpos hits the end then force a shuffle. without
		 * this, fixed size buffers which hit the fill point part way through a
		 * message never get a chance to clear themselves because they never
		 * perform a ReadAdvance. */
		b.Optimize()
	}
	return b.data[b.wpos:], nil
}

// WriteAdvance commits len bytes written into the slice returned by the
// previous WriteAcquire.
func (b *Buffer) WriteAdvance(n int) error {
	if b.wpos+n > len(b.data) {
		return errors.New("rapic: buffer overflow detected on write operation")
	}
	b.wpos += n
	return nil
}

// ReadAcquire returns the unread span of the buffer. This allows direct
// reading from the buffer in applications with no need to decode the rapic
// data, such as data logging.
func (b *Buffer) ReadAcquire() []byte {
	return b.data[b.rpos:b.wpos]
}

// ReadAdvance consumes n bytes from the unread span. When the read position
// catches the write position both reset to the start of the buffer.
func (b *Buffer) ReadAdvance(n int) error {
	if b.rpos+n > b.wpos {
		return errors.New("rapic: buffer overflow detected on read operation")
	}
	b.rpos += n
	if b.rpos == b.wpos {
		b.rpos = 0
		b.wpos = 0
	}
	return nil
}

// ReadDetect determines whether a complete message is readable from the
// buffer, and if so its type and length. The scan is non-destructive: until
// ReadAdvance is called the same message is detected again. The returned
// length runs from the read position through the message terminator, so
// passing it to ReadAdvance steps to the next message.
//
// When no terminator can be found and the unread span has already reached the
// buffer's maximum size, the message can never complete and ErrBufferOverflow
// is returned so the caller cannot deadlock.
func (b *Buffer) ReadDetect() (MessageType, int, bool, error) {
	d := b.data[b.rpos:b.wpos]
	msg := noMessage
	var nxt int

	// ignore leading whitespace (and return if no data at all)
	pos := findNonWhitespace(d, 0)
	if pos == len(d) {
		return noMessage, 0, false, nil
	}

	switch {
	// is it a comment (i.e. IMAGE header)?
	case hasPrefixAt(d, pos, msgCommentHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessageComment
		}

	// is it an MSSG 30 style message? (must check mssg30 before mssg as the
	// mssg header is a subset of the mssg30 header)
	case hasPrefixAt(d, pos, msgMssg30Head):
		// status 30 is multi-line terminated by "END STATUS"
		pos += len(msgMssg30Head)
		for {
			if nxt = findEOL(d, pos); nxt == len(d) {
				break
			}
			if string(d[pos:nxt]) == msgMssg30Term {
				msg = MessageMssg
				break
			}
			pos = nxt + 1
		}

	// is it an MSSG style message?
	case hasPrefixAt(d, pos, msgMssgHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessageMssg
		}

	// is it an RDRSTAT message?
	case hasPrefixAt(d, pos, msgStatusHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessageStatus
		}

	// is it a SEMIPERMANENT CONNECTION message? (must check this before
	// RPQUERY due to header similarity)
	case hasPrefixAt(d, pos, msgPermconHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessagePermcon
		}

	// is it an RPQUERY style message?
	case hasPrefixAt(d, pos, msgQueryHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessageQuery
		}

	// is it an RPFILTER style message?
	case hasPrefixAt(d, pos, msgFilterHead):
		if nxt = findEOL(d, pos); nxt != len(d) {
			msg = MessageFilter
		}

	// otherwise assume it is a scan message and look for "END RADAR IMAGE"
	default:
		for {
			if nxt = findEOL(d, pos); nxt == len(d) {
				break
			}
			// the terminator is sometimes prefixed with a ^Z byte, just
			// detect and skip whitespace
			if pos = findNonWhitespace(d[:nxt], pos); pos == nxt {
				pos = nxt + 1
				continue
			}
			if string(d[pos:nxt]) == msgScanTerm {
				msg = MessageScan
				break
			}
			pos = nxt + 1
		}
	}

	if msg != noMessage {
		return msg, nxt + 1, true, nil
	}
	if b.wpos-b.rpos >= b.maxSize {
		return noMessage, 0, false, errors.Wrap(ErrBufferOverflow, "rapic: message framing")
	}
	return noMessage, 0, false, nil
}
