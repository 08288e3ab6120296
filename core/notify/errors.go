package notify

import "errors"

// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrNoSession is returned when the worker has no live delivery channel.
var ErrNoSession = errors.New("no delivery session for worker")
