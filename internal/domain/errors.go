package domain

import "errors"

var (
	ErrEmptySeriesName = errors.New("series name is empty")
)
