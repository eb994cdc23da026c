package models

// User is the identity record. ID is assigned by storage on creation and is
// zero before that. PasswordHash is a bcrypt hash, never the raw password.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
}
