package domain

// User is an account of the authentication API.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Connected    bool
	CreatedAt    string
}
