package errors

import pkgerrors "github.com/pkg/errors"

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalError represents a generic internal error.
	GeneralInternalError ErrorCode = "general_internal_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"

	// TransportConnectError represents a failure to establish the push-feed connection.
	TransportConnectError ErrorCode = "transport_connect_error"
	// TransportSendError represents a failure to write a message on the push-feed connection.
	TransportSendError ErrorCode = "transport_send_error"
	// TransportClosedError represents an operation attempted on a closed connection.
	TransportClosedError ErrorCode = "transport_closed_error"

	// ProtocolMessageError represents a malformed or unexpected push-feed message.
	ProtocolMessageError ErrorCode = "protocol_message_error"

	// HistoryFetchError represents a failure of the historical-data collaborator.
	HistoryFetchError ErrorCode = "history_fetch_error"
	// HistoryDecodeError represents an undecodable historical-data response.
	HistoryDecodeError ErrorCode = "history_decode_error"

	// IntervalUnknownError represents an unsupported interval name.
	IntervalUnknownError ErrorCode = "interval_unknown_error"

	// RedisPublishError represents an error when publishing messages to channels in Redis.
	RedisPublishError ErrorCode = "redis_publish_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisPingError represents an error when pinging Redis.
	RedisPingError ErrorCode = "redis_pinging_error"
	// RedisDisconnectionError represents an error when disconnecting from Redis.
	RedisDisconnectionError ErrorCode = "redis_disconnection_error"

	// KafkaPublishError represents an error when publishing update events to Kafka.
	KafkaPublishError ErrorCode = "kafka_publish_error"
)

// Category represents the category of an error.
type Category string

const (
	// CategoryNetwork indicates an error related to network operations.
	CategoryNetwork Category = "network"
	// CategoryProtocol indicates an error related to wire-protocol handling.
	CategoryProtocol Category = "protocol"
	// CategoryExternal indicates an error related to external services or APIs.
	CategoryExternal Category = "external"
	// CategoryValidation indicates an error related to validation of input data.
	CategoryValidation Category = "validation"
	// CategoryUnknown indicates an unknown error category.
	CategoryUnknown Category = "unknown"
)

// CodedError is an error carrying one of the ErrorCode constants so callers
// can branch on the failure class without string matching.
type CodedError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewCoded creates a CodedError with the given code and message.
func NewCoded(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// WrapCoded creates a CodedError wrapping err, preserving its stack trace.
func WrapCoded(code ErrorCode, err error) *CodedError {
	return &CodedError{Code: code, Message: err.Error(), Err: TracerFromError(err)}
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error, if any.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err if it is a CodedError,
// GeneralInternalError otherwise.
func CodeOf(err error) ErrorCode {
	coded, ok := err.(*CodedError)
	if !ok {
		return GeneralInternalError
	}
	return coded.Code
}

// HasCode checks whether a given error carries a specific code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// StackTracer is satisfied by errors carrying a github.com/pkg/errors
// stack trace. The logger renders the trace when an error provides one.
type StackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// ErrorTracer pairs a message with a stack-carrying cause, so transport
// and fetch failures keep their origin through the coded wrappers.
type ErrorTracer struct {
	Message string
	Err     error
}

// TracerFromError wraps err, attaching a stack trace when it has none.
func TracerFromError(err error) *ErrorTracer {
	cause := err
	if _, ok := err.(StackTracer); !ok {
		cause = pkgerrors.WithStack(err)
	}
	return &ErrorTracer{Message: err.Error(), Err: cause}
}

// Error implements the error interface.
func (e *ErrorTracer) Error() string {
	return e.Message
}

// Unwrap returns the stack-carrying cause.
func (e *ErrorTracer) Unwrap() error {
	return e.Err
}

// StackTrace exposes the cause's stack, if any.
func (e *ErrorTracer) StackTrace() pkgerrors.StackTrace {
	if st, ok := e.Err.(StackTracer); ok {
		return st.StackTrace()
	}
	return nil
}
