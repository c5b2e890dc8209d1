package service

import "errors"

var (
	ErrNoData = errors.New("no allocations in selected period")
)
