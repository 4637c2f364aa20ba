package config

import "errors"

// Sentinel errors for the three ways loading can fail, plus validation.
// Callers match with errors.Is; the wrapped message carries the detail.
var (
	ErrFileDoesNotExist  = errors.New("config file does not exist")
	ErrReadConfigFail    = errors.New("failed to read config file")
	ErrConfigParsingFail = errors.New("failed to parse config file")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
