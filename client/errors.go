package client

import "errors"

// ErrTransport wraps network failures and timeouts. A send attempt that
// fails with it may be retried; the retry is signed again from scratch.
var ErrTransport = errors.New("client: transport failure")
