/*
Package user contains the core data structure for user identity.

It defines UserInfo, the immutable value describing a chat participant. Copies of
UserInfo travel into the presence registry and into rendered broadcast payloads;
the struct never holds a reference back to a live connection.
*/
package user

// UserInfo represents the identity of a chat participant.
// Fields use JSON tags for serialization into the presence registry and relay envelopes.
type UserInfo struct {

	// ID is the unique identifier of the user in the relational store.
	ID int64 `json:"id"`

	// FirstName is the user's given name.
	FirstName string `json:"firstName"`

	// LastName is the user's family name.
	LastName string `json:"lastName"`

	// Mail is the user's login address.
	Mail string `json:"mail"`
}

// DisplayName returns the name shown to other chatroom participants.
func (u UserInfo) DisplayName() string {
	return u.LastName + " " + u.FirstName
}
