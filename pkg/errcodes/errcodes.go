package errcodes

import "git.appkode.ru/pub/go/failure"

const (
	ValidationError     failure.ErrorCode = "ValidationError"
	TimeoutError        failure.ErrorCode = "TimeoutError"
	UpstreamError       failure.ErrorCode = "UpstreamError"
	CancellationError   failure.ErrorCode = "CancellationError"
	ResolutionFailure   failure.ErrorCode = "ResolutionFailure"
	Unauthorized        failure.ErrorCode = "Unauthorized"
	Conflict            failure.ErrorCode = "Conflict"
	NotFound            failure.ErrorCode = "NotFound"
	InternalServerError failure.ErrorCode = "InternalError"
)
