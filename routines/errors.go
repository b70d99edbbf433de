package routines

import "errors"

var (
	ErrInvalidInterval       = errors.New("routine interval must be greater than zero")
	ErrInvalidMaxHistoryDays = errors.New("max history days must be at least 1")
)
