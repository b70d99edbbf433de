package cachemdw

import "errors"

var (
	ErrEmptyCachePrefix = errors.New("cache prefix must not be empty")
)
