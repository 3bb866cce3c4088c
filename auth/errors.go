package auth

import "fmt"

// AuthErrorKind classifies authorization failures.
type AuthErrorKind string

const (
	// AuthChallengeFetch: the signing challenge could not be obtained.
	AuthChallengeFetch AuthErrorKind = "challenge_fetch_failed"
	// AuthSignatureRejected: the gateway refused the signed challenge or token.
	AuthSignatureRejected AuthErrorKind = "signature_rejected"
	// AuthTransport: the exchange failed below the protocol level.
	AuthTransport AuthErrorKind = "transport_failure"
	// AuthNotAuthenticated: no key material is held, typically after Logout.
	AuthNotAuthenticated AuthErrorKind = "not_authenticated"
)

// AuthError is the typed failure returned by Authorize and EnsureValid.
// It never contains key material, signatures, or token values.
type AuthError struct {
	Kind AuthErrorKind
	Err  error // underlying cause, may be nil
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// statusError is implemented by transport errors that carry an HTTP status,
// letting the manager distinguish a rejected signature from an outage.
type statusError interface {
	HTTPStatus() int
}
