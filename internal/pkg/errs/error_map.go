/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Chatroom and Content Business Logic Errors
	ErrChatroomNotFound:      {Code: ErrChatroomNotFound, Message: "Chatroom not found.", Status: http.StatusNotFound},
	ErrNotChatroomMember:     {Code: ErrNotChatroomMember, Message: "You are not a member of this chatroom.", Status: http.StatusForbidden},
	ErrChatroomTitleExists:   {Code: ErrChatroomTitleExists, Message: "A chatroom with this title already exists."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},

	// 3xxx: User, Session, and Security Errors
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusNotFound},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect mail or password."},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrIdentityMismatch:   {Code: ErrIdentityMismatch, Message: "Identity does not match the requested connection.", Status: http.StatusForbidden},
	ErrMailAlreadyExists:  {Code: ErrMailAlreadyExists, Message: "An account with this mail already exists."},

	// 5xxx: Internal System Errors
	ErrUnknown:             {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPresenceUnavailable: {Code: ErrPresenceUnavailable, Message: "Chat service is temporarily unavailable.", Status: http.StatusServiceUnavailable},
}
