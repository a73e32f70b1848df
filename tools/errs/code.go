package errs

// Failure-class codes. 11xx handshake auth, 12xx admission,
// 13xx event rate limiting, 14xx event validation.
const (
	CodeTokenMissing      = 1101
	CodeTokenExpired      = 1102
	CodeTokenNotYetValid  = 1103
	CodeTokenBadSignature = 1104
	CodeTokenVerify       = 1105
	CodeQueryToken        = 1106

	CodeAdmissionDenied = 1201

	CodeEventRateLimited = 1301
	CodeBandwidthLimited = 1302

	CodeUnknownEvent = 1401
	CodeBadFrame     = 1402
)

// The Msg values below are wire-visible reason strings; clients switch
// on them, so they are part of the protocol surface.
var (
	ErrTokenMissing      = NewCodeError(CodeTokenMissing, "auth_token_missing")
	ErrTokenExpired      = NewCodeError(CodeTokenExpired, "auth_token_expired")
	ErrTokenNotYetValid  = NewCodeError(CodeTokenNotYetValid, "auth_token_not_yet_valid")
	ErrTokenBadSignature = NewCodeError(CodeTokenBadSignature, "auth_token_bad_signature")
	ErrTokenVerify       = NewCodeError(CodeTokenVerify, "auth_verify_failed")
	ErrQueryToken        = NewCodeError(CodeQueryToken, "auth_query_token_rejected")

	ErrAdmissionDenied = NewCodeError(CodeAdmissionDenied, "too_many_connections")

	ErrEventRateLimited = NewCodeError(CodeEventRateLimited, "event_rate_limited")
	ErrBandwidthLimited = NewCodeError(CodeBandwidthLimited, "bandwidth_limited")

	ErrUnknownEvent = NewCodeError(CodeUnknownEvent, "unknown_event")
	ErrBadFrame     = NewCodeError(CodeBadFrame, "bad_frame")
)
