package domainerrors

// Kind groups codes into the engine's error taxonomy. Callers that only care
// about "why did this abort" switch on the Kind instead of individual codes.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindSignature     Kind = "signature"
	KindInternal      Kind = "internal"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	switch GetCode(err) {
	case CodeUnauthorized, CodeForbidden:
		return KindAuthorization
	case CodeValidation, CodeBadRequest, CodeInvalidInput, CodeInvariantViolation:
		return KindValidation
	case CodeNotFound, CodeConflict, CodeInvalidState, CodeTimeout:
		return KindState
	case CodeInvalidSignature:
		return KindSignature
	default:
		return KindInternal
	}
}

// IsKind reports whether err falls into kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
