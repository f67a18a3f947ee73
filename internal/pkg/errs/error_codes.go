/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the server and in communication with clients.
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

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Chatroom and Content Business Logic Errors
const (
	// ErrChatroomNotFound indicates that the requested chatroom does not exist.
	ErrChatroomNotFound = 2101

	// ErrNotChatroomMember indicates that the user is not a member of the chatroom.
	ErrNotChatroomMember = 2102

	// ErrChatroomTitleExists indicates that a chatroom with the same title already exists.
	ErrChatroomTitleExists = 2103

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = 3001

	// ErrInvalidCredentials indicates that the mail/password pair did not match an account.
	ErrInvalidCredentials = 3002

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3003

	// ErrIdentityMismatch indicates that the user id claimed in the URL disagrees
	// with the identity established by the authentication token.
	ErrIdentityMismatch = 3004

	// ErrMailAlreadyExists indicates that an account with the given mail address already exists.
	ErrMailAlreadyExists = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPresenceUnavailable indicates that the presence registry backend could not be reached.
	ErrPresenceUnavailable = 5001
)
