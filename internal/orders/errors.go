package orders

import "errors"

// ErrOrderRejected means the order API refused the order (4xx). Retrying the same payload will not help.
var ErrOrderRejected = errors.New("order rejected by order service")

// ErrOrderServiceUnavailable means the circuit breaker is open and the call was not attempted.
var ErrOrderServiceUnavailable = errors.New("order service unavailable")

var errServerFailure = errors.New("order service failure")
