// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_FormatError_Chain(t *testing.T) {
	err := &DecodeError{
		Type:    MessageScan,
		Context: " stnid: 2",
		Cause:   errors.New("scan data overflow (ascii rle)"),
	}
	assert.Equal(t,
		"failed to decode scan stnid: 2\n  -> scan data overflow (ascii rle)",
		FormatError(err))
}

func Test_FormatError_SingleError(t *testing.T) {
	assert.Equal(t, "boom", FormatError(errors.New("boom")))
}

func Test_FormatError_WrappedSentinel(t *testing.T) {
	err := errors.Wrap(ErrInvalidState, "rapic: connect called while already connected")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t,
		"rapic: connect called while already connected\n  -> rapic: operation invalid in current state",
		FormatError(err))
}

func Test_DecodeError_Unwrap(t *testing.T) {
	cause := errors.New("bad ray")
	err := &DecodeError{Type: MessageScan, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to decode scan", err.Error())
}
