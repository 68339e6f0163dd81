package api

import (
	"context"

	"taskhub-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	PutTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
}

// NotFoundError is reported by the store when a record does not exist. For
// tasks this also covers records owned by someone else: handlers map both to
// Forbidden so callers cannot probe for other users' task ids.
type NotFoundError interface {
	error
	NotFound()
}

// ConflictError is reported by the store when an insert collides with an
// existing record, e.g. registering an email twice.
type ConflictError interface {
	error
	Conflict()
}

// Identity is the verified subject of a request.
type Identity struct {
	UserID string
	Email  string
}

// Authenticator is implemented by types able to extract caller identities
// from Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}
