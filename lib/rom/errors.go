// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"github.com/pkg/errors"
)

// Fatal decode failures. Wrapped with context where it helps, so check
// with errors.Cause() or errors.Is().
var (
	ErrTooSmall       = errors.New("firmware too small")
	ErrStalled        = errors.New("firmware not fulfilling requests")
	ErrNoHeader       = errors.New("failed to detect firmware header")
	ErrOverflow       = errors.New("firmware corrupt (overflow)")
	ErrKindUndetected = errors.New("failed to detect firmware kind")
	ErrVersionUnknown = errors.New("firmware version extractor not known")
)
