/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Directory Business Logic Errors
const (
	// ErrUserNotFound indicates that no user record exists for the requested id.
	ErrUserNotFound = 2101

	// ErrInvalidName indicates that a required user name was missing or empty.
	ErrInvalidName = 2102

	// ErrInvalidPassword indicates that a required password was missing or empty.
	ErrInvalidPassword = 2103

	// ErrInvalidChatID indicates that a chat reference id was missing or empty.
	ErrInvalidChatID = 2201
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrInvalidCredentials indicates that no user matched the supplied name and password.
	ErrInvalidCredentials = 3101

	// ErrUnauthorized indicates a missing or unresolvable bearer token.
	ErrUnauthorized = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStorageFailed indicates that the directory document could not be written.
	ErrStorageFailed = 5001
)
