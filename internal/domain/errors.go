package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNetwork         = errors.New("network failure")
	ErrUnknown         = errors.New("unknown failure")
	ErrNotConnected    = errors.New("realtime channel not connected")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrStaleSubmission = errors.New("bid submitted while disconnected")
	ErrBidTooLow       = errors.New("bid below minimum next bid")
	ErrAuctionEnded    = errors.New("auction has ended")
	ErrInvalidBid      = errors.New("invalid bid amount")
	ErrSessionClosed   = errors.New("session closed")
	ErrCacheMiss       = errors.New("cache miss")
)

// FetchErrorKind classifies snapshot fetch failures.
type FetchErrorKind string

const (
	FetchNotFound     FetchErrorKind = "not_found"
	FetchNetwork      FetchErrorKind = "network"
	FetchUnauthorized FetchErrorKind = "unauthorized"
	FetchUnknown      FetchErrorKind = "unknown"
)

// FetchError is returned by snapshot fetchers. It matches the sentinel of its
// kind under errors.Is.
type FetchError struct {
	Kind      FetchErrorKind
	AuctionID string
	Message   string
	Err       error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("fetch auction %s: %s: %s", e.AuctionID, e.Kind, msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on the kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == FetchNotFound
	case ErrUnauthorized:
		return e.Kind == FetchUnauthorized
	case ErrNetwork:
		return e.Kind == FetchNetwork
	case ErrUnknown:
		return e.Kind == FetchUnknown
	}
	return false
}

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(kind FetchErrorKind, auctionID, message string, err error) *FetchError {
	return &FetchError{Kind: kind, AuctionID: auctionID, Message: message, Err: err}
}
