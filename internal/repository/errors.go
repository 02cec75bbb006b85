package repository

import "errors"

var (
	ErrUserExists   = errors.New("repository: user already exists")
	ErrUserNotFound = errors.New("repository: user not found")
)
