package jobs

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidRange    = errors.New("startDate cannot be after endDate")
	ErrResultsRejected = errors.New("task no longer accepts results")
	ErrDispatch        = errors.New("failed to dispatch clustering job")
)
