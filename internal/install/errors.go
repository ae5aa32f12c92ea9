// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package install

import "errors"

// Error taxonomy sentinels, matched with errors.Is against wrapped
// errors.
var (
	ErrValidation    = errors.New("validation error: size or hash mismatch, or file absent when expected")
	ErrFormat        = errors.New("format error: archive or delta could not be parsed")
	ErrResource      = errors.New("resource error: permit, disk, or temp file operation failed")
	ErrNetwork       = errors.New("network error: transient download failure")
	ErrConfiguration = errors.New("configuration error: missing api key, game directory, or referenced archive")
)
