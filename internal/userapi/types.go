// Package userapi provides a typed client for the users REST backend.
package userapi

import "time"

// User represents a user record as returned by the backend.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// PageResult is one page of users plus total count metadata.
// TotalPages is advisory; callers derive their own page count from TotalElements.
type PageResult struct {
	Content       []User `json:"content"`
	TotalElements int    `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	Number        int    `json:"number"`
	Size          int    `json:"size"`
}

// CreateRequest is the body of a create call.
type CreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateRequest is the body of an update call. It never carries a password.
type UpdateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}
