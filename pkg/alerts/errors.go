package alerts

import "errors"

var (
	ErrUnknownOperator  = errors.New("unknown condition operator")
	ErrEmptyField       = errors.New("condition field is empty")
	ErrInvalidThreshold = errors.New("invalid condition threshold")
)
