package rpc

import (
	"context"
	"errors"
)

var (
	ErrDisposed        = errors.New("rpc: channel disposed")
	ErrTimeout         = errors.New("rpc: timeout")
	ErrServiceNotFound = errors.New("rpc: service not found")
	ErrAddressInUse    = errors.New("rpc: address already exported")
)

// IsTimeout reports whether err is a deadline failure of the channel.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
