package broker

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes broker errors.
type ErrorCode string

const (
	// ErrCodeClosed indicates an operation against a closed broker or consumer.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeUnknownTopic indicates a reference to a topic that doesn't exist.
	ErrCodeUnknownTopic ErrorCode = "UNKNOWN_TOPIC"

	// ErrCodeBadTopic indicates a missing or invalid topic name.
	ErrCodeBadTopic ErrorCode = "BAD_TOPIC"

	// ErrCodeBadPartitions indicates an invalid or conflicting partition count.
	ErrCodeBadPartitions ErrorCode = "BAD_PARTITIONS"

	// ErrCodeBadGroup indicates a missing consumer group name.
	ErrCodeBadGroup ErrorCode = "BAD_GROUP"
)

// Error is a structured broker error with category and affected names.
type Error struct {
	Code    ErrorCode
	Message string
	Topic   string
	Group   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Topic != "" && e.Group != "":
		return fmt.Sprintf("%s: %s (topic=%s, group=%s)", e.Code, e.Message, e.Topic, e.Group)
	case e.Topic != "":
		return fmt.Sprintf("%s: %s (topic=%s)", e.Code, e.Message, e.Topic)
	case e.Group != "":
		return fmt.Sprintf("%s: %s (group=%s)", e.Code, e.Message, e.Group)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsClosed reports whether err is a broker-closed error.
// Uses errors.As to handle wrapped errors.
func IsClosed(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == ErrCodeClosed
	}
	return false
}

// IsUnknownTopic reports whether err is an unknown-topic error.
func IsUnknownTopic(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == ErrCodeUnknownTopic
	}
	return false
}
