package model

// User is an account. Providers can be booked; everyone can book.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Provider     bool
}
