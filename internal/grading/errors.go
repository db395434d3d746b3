package grading

import "errors"

// ErrInvalid is wrapped by every validation failure raised in this package.
var ErrInvalid = errors.New("invalid grading input")
