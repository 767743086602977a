// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feedBuffer(t *testing.T, b *Buffer, data string) {
	wa, err := b.WriteAcquire(len(data))
	assert.NoError(t, err)
	copy(wa, data)
	assert.NoError(t, b.WriteAdvance(len(data)))
}

func Test_Buffer_WriteReadCycle(t *testing.T) {
	b := NewBuffer(16, 64)
	assert.Equal(t, 16, b.Size())

	feedBuffer(t, b, "hello")
	assert.Equal(t, []byte("hello"), b.ReadAcquire())

	assert.NoError(t, b.ReadAdvance(2))
	assert.Equal(t, []byte("llo"), b.ReadAcquire())

	// consuming the rest resets both cursors
	assert.NoError(t, b.ReadAdvance(3))
	assert.Empty(t, b.ReadAcquire())
	feedBuffer(t, b, "x")
	assert.Equal(t, []byte("x"), b.ReadAcquire())
}

func Test_Buffer_GrowsToMax(t *testing.T) {
	b := NewBuffer(4, 16)
	feedBuffer(t, b, "0123456789abcdef")
	assert.Equal(t, 16, b.Size())

	// no further growth is possible
	_, err := b.WriteAcquire(1)
	assert.ErrorIs(t, err, ErrBufferOverflow)

	// draining data restores write space
	assert.NoError(t, b.ReadAdvance(8))
	wa, err := b.WriteAcquire(8)
	assert.NoError(t, err)
	assert.Len(t, wa, 8)
}

func Test_Buffer_OptimizeShiftsUnread(t *testing.T) {
	b := NewBuffer(8, 8)
	feedBuffer(t, b, "abcdefgh")
	assert.NoError(t, b.ReadAdvance(6))

	// compaction must make the trailing space reusable without growth
	wa, err := b.WriteAcquire(4)
	assert.NoError(t, err)
	assert.Len(t, wa, 6)
	assert.Equal(t, []byte("gh"), b.ReadAcquire())
}

func Test_Buffer_ResizeRejectsDataLoss(t *testing.T) {
	b := NewBuffer(8, 64)
	feedBuffer(t, b, "abcdef")
	assert.Error(t, b.Resize(4))
	assert.NoError(t, b.Resize(6))
	assert.Equal(t, []byte("abcdef"), b.ReadAcquire())
}

func detect(t *testing.T, data string) (MessageType, int, bool) {
	b := NewBuffer(1024, DefaultMaxBufferSize)
	feedBuffer(t, b, data)
	mt, size, ok, err := b.ReadDetect()
	assert.NoError(t, err)
	return mt, size, ok
}

func Test_Buffer_DetectKeepalive(t *testing.T) {
	// scenario: minimal keepalive round-trip
	mt, size, ok := detect(t, "RDRSTAT:\n")
	assert.True(t, ok)
	assert.Equal(t, MessageStatus, mt)
	assert.Equal(t, 9, size)
}

func Test_Buffer_DetectPerKind(t *testing.T) {
	cases := []struct {
		data string
		mt   MessageType
	}{
		{"/IMAGE: 1\n", MessageComment},
		{"MSSG: 2 server going down\n", MessageMssg},
		{"MSSG: 30 multi\nline\nEND STATUS\n", MessageMssg},
		{"RDRSTAT: ok\n", MessageStatus},
		{"RPQUERY: SEMIPERMANENT CONNECTION - SEND ALL DATA TXCOMPLETESCANS=0\n", MessagePermcon},
		{"RPQUERY: 2 VOL -1 -1 LATEST 0 Refl 16\n", MessageQuery},
		{"RPFILTER:-1:ANY:-1:-1:\n", MessageFilter},
		{"STNID: 2\nEND RADAR IMAGE\n", MessageScan},
	}
	for _, tc := range cases {
		mt, size, ok := detect(t, tc.data)
		assert.True(t, ok, tc.data)
		assert.Equal(t, tc.mt, mt, tc.data)
		assert.Equal(t, len(tc.data), size, tc.data)
	}
}

func Test_Buffer_DetectIncompleteMessages(t *testing.T) {
	for _, data := range []string{
		"",
		"   \n \n",
		"RDRSTAT:",
		"MSSG: 30 multi\nline without end status\n",
		"STNID: 2\nPRODUCT: x\n%000ABC",
	} {
		_, _, ok := detect(t, data)
		assert.False(t, ok, data)
	}
}

func Test_Buffer_DetectSkipsLeadingWhitespace(t *testing.T) {
	mt, size, ok := detect(t, " \n\x00\r RDRSTAT:\n")
	assert.True(t, ok)
	assert.Equal(t, MessageStatus, mt)
	// the length runs from the read position through the terminator
	assert.Equal(t, len(" \n\x00\r RDRSTAT:\n"), size)
}

func Test_Buffer_DetectScanControlZTerminator(t *testing.T) {
	// some radars prefix the scan terminator with a ^Z byte
	data := "STNID: 2\n%000ABC\n\x1aEND RADAR IMAGE\n"
	mt, size, ok := detect(t, data)
	assert.True(t, ok)
	assert.Equal(t, MessageScan, mt)
	assert.Equal(t, len(data), size)
}

func Test_Buffer_DetectIsNonDestructive(t *testing.T) {
	b := NewBuffer(1024, DefaultMaxBufferSize)
	feedBuffer(t, b, "MSSG: 30 a\nb\nEND STATUS\nRDRSTAT:\n")

	for i := 0; i < 3; i++ {
		mt, size, ok, err := b.ReadDetect()
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, MessageMssg, mt)
		assert.Equal(t, len("MSSG: 30 a\nb\nEND STATUS\n"), size)
	}

	assert.NoError(t, b.ReadAdvance(len("MSSG: 30 a\nb\nEND STATUS\n")))
	mt, size, ok, err := b.ReadDetect()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MessageStatus, mt)
	assert.Equal(t, 9, size)
}

func Test_Buffer_DetectCommentProperty(t *testing.T) {
	// any line starting with '/' and free of control bytes frames as comment
	for _, text := range []string{"", "IMAGE", "a b c : d", "RDRSTAT: not really"} {
		data := "/" + text + "\n"
		mt, size, ok := detect(t, data)
		assert.True(t, ok, data)
		assert.Equal(t, MessageComment, mt, data)
		assert.Equal(t, len(data), size, data)
		assert.Greater(t, size, 0, data)
	}
}

func Test_Buffer_DetectOverflow(t *testing.T) {
	// scenario: a scan with no terminator fills a capped buffer
	b := NewBuffer(32, 32)
	feedBuffer(t, b, "STNID: 2\nPRODUCT: abcdefghijklm\n")

	_, _, _, err := b.ReadDetect()
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func Test_Buffer_DetectPrefixOrdering(t *testing.T) {
	// MSSG: 30 must be matched before the shorter MSSG: prefix; an
	// incomplete mssg30 must therefore not frame on its first line alone
	_, _, ok := detect(t, "MSSG: 30 first line\n")
	assert.False(t, ok)

	// RPQUERY: SEMIPERMANENT CONNECTION must be matched before RPQUERY:
	mt, _, ok := detect(t, "RPQUERY: SEMIPERMANENT CONNECTION - SEND ALL DATA TXCOMPLETESCANS=1\n")
	assert.True(t, ok)
	assert.Equal(t, MessagePermcon, mt)
}
