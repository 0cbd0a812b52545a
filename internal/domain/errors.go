package domain

import "errors"

// ErrValidation marks malformed input that is fatal for the message it belongs to.
var ErrValidation = errors.New("validation defect")
