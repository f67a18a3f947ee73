package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for Parley.
// It includes standard claims required by the JWT specification and the custom
// claims necessary for identifying users during the WebSocket handshake and on
// the REST API.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the identifier of the authenticated user. During the WebSocket
	// handshake this is the trusted identity compared against the user id in the URL.
	UserID int64 `json:"user_id"`

	// Mail is the login address of the authenticated user.
	Mail string `json:"mail"`
}
