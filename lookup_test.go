// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Lookup_Terminators(t *testing.T) {
	for _, b := range []byte{0x00, 0x0a, 0x0d} {
		assert.Equal(t, encTerminate, lookup[b].kind, "byte %#x", b)
	}
}

func Test_Lookup_Digits(t *testing.T) {
	for d := byte('0'); d <= '9'; d++ {
		assert.Equal(t, encDigit, lookup[d].kind)
		assert.Equal(t, int16(d-'0'), lookup[d].val)
	}
}

func Test_Lookup_LetterZoneValues(t *testing.T) {
	// 'A'..'P' carry levels 0..15
	for b := byte('A'); b <= 'P'; b++ {
		assert.Equal(t, encValue, lookup[b].kind)
		assert.Equal(t, int16(b-'A'), lookup[b].val)
	}
	// the high half of the byte range carries levels 32..159
	for b := 0x80; b <= 0xff; b++ {
		assert.Equal(t, encValue, lookup[b].kind)
		assert.Equal(t, int16(b-0x80+32), lookup[b].val)
	}
}

func Test_Lookup_DeltaRange(t *testing.T) {
	// every delta component lies in -3..3
	deltas := 0
	for b := 0; b < 256; b++ {
		if lookup[b].kind == encDelta {
			deltas++
			assert.GreaterOrEqual(t, lookup[b].val, int16(-3))
			assert.LessOrEqual(t, lookup[b].val, int16(3))
			assert.GreaterOrEqual(t, lookup[b].val2, int16(-3))
			assert.LessOrEqual(t, lookup[b].val2, int16(3))
		}
	}
	// one delta byte exists for every (d1, d2) pair in -3..3
	assert.Equal(t, 49, deltas)

	// spot check the delta used by the ascii ray scenario
	assert.Equal(t, encDelta, lookup['@'].kind)
	assert.Equal(t, int16(3), lookup['@'].val)
	assert.Equal(t, int16(-3), lookup['@'].val2)
}

func Test_Lookup_ErrorBytes(t *testing.T) {
	for _, b := range []byte{0x01, 0x1f, 0x60, 0x7f, '#', '%'} {
		assert.Equal(t, encError, lookup[b].kind, "byte %#x", b)
	}
}

func Test_Lookup_ReverseTable(t *testing.T) {
	// every level has a wire byte which decodes back to itself
	for level := 0; level < 160; level++ {
		b := levelByte[level]
		assert.Equal(t, encValue, lookup[b].kind, "level %d", level)
		assert.Equal(t, int16(level), lookup[b].val, "level %d", level)
	}
}
