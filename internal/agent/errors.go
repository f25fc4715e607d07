package agent

import "errors"

var (
	errEmptyType = errors.New("producer type must not be empty")
	errNilWorker = errors.New("worker must not be nil")
)
