// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Sentinel errors for the failure kinds that callers dispatch on. Failures of
// these kinds are wrapped with context around the sentinel so that errors.Is
// still matches. Syscall level failures have no sentinel; they wrap the
// underlying errno, which errors.Is and errors.As reach through the chain.
var (
	// ErrResolveFailed indicates a DNS or service lookup failure.
	ErrResolveFailed = errors.New("rapic: unable to resolve address")
	// ErrBufferOverflow indicates the framer cannot complete a message
	// before the buffer maximum size is reached.
	ErrBufferOverflow = errors.New("rapic: message exceeds maximum buffer size")
	// ErrInvalidState indicates API misuse such as connecting while
	// connected or decoding with no dequeued message.
	ErrInvalidState = errors.New("rapic: operation invalid in current state")
)

// DecodeError is raised when a message fails to decode. It carries contextual
// header fields observed before the failure and the nested lower-level cause.
// Decode errors never tear down the connection; the stream is advanced past
// the malformed message.
type DecodeError struct {
	Type    MessageType
	Context string
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("failed to decode %s%s", e.Type, e.Context)
	}
	return fmt.Sprintf("failed to decode %s", e.Type)
}

// Unwrap returns the nested cause of the decode failure.
func (e *DecodeError) Unwrap() error { return e.Cause }

// scanContext builds the diagnostic suffix for scan decode errors from the
// headers parsed before the failure occurred.
func scanContext(s *Scan) string {
	var sb strings.Builder
	for _, name := range []string{"STNID", "NAME", "PRODUCT", "TILT", "PASS", "VIDEO"} {
		if h := s.FindHeader(name); h != nil {
			fmt.Fprintf(&sb, " %s: %s", strings.ToLower(name), h.Value)
		}
	}
	return sb.String()
}

// FormatError renders an error and its chain of causes with "->" indentation,
// one cause per line. Wrapper layers which only annotate a stack trace share
// their message with the layer beneath and collapse to a single line.
func FormatError(err error) string {
	var sb strings.Builder
	indent := 0
	for err != nil {
		// find the next cause carrying a new message
		next := stderrors.Unwrap(err)
		for next != nil && next.Error() == err.Error() {
			next = stderrors.Unwrap(next)
		}

		// strip the repeated cause suffix so the chain reads one layer per line
		msg := err.Error()
		if next != nil {
			if s := next.Error(); s != "" && strings.HasSuffix(msg, ": "+s) {
				msg = msg[:len(msg)-len(s)-2]
			}
		}

		if indent > 0 {
			sb.WriteByte('\n')
			sb.WriteString(strings.Repeat(" ", indent))
			sb.WriteString("-> ")
		}
		sb.WriteString(msg)
		err = next
		indent += 2
	}
	return sb.String()
}
