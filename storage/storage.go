package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskhub-api/domain"
)

// Storage provides access to the task and user tables.
//
// Tasks are partitioned by owner: PartitionKey is the userId and RowKey the
// taskId, so listing a user's tasks is a single partition query and a point
// read with the caller's userId doubles as the ownership check. A lookup with
// the wrong owner misses the same way a deleted task does.
//
// Users are keyed by normalized email on both keys, making "find by email" a
// point read and duplicate registration an insert conflict.
type Storage struct {
	taskTable *aztables.Client
	userTable *aztables.Client
}

type taskNotFoundError struct{}

func (taskNotFoundError) Error() string { return "task not found" }
func (taskNotFoundError) NotFound()     {}

type userNotFoundError struct{}

func (userNotFoundError) Error() string { return "user not found" }
func (userNotFoundError) NotFound()     {}

type emailTakenError struct{}

func (emailTakenError) Error() string { return "email already registered" }
func (emailTakenError) Conflict()     {}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, usersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable: svc.NewClient(tasksTable),
		userTable: svc.NewClient(usersTable),
	}, nil
}

// EnsureTables creates both tables, tolerating tables that already exist.
func (s *Storage) EnsureTables(ctx context.Context) error {
	for _, tbl := range []*aztables.Client{s.taskTable, s.userTable} {
		if _, err := tbl.CreateTable(ctx, nil); err != nil && !hasStatus(err, http.StatusConflict) {
			return err
		}
	}
	return nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Done        bool   `json:"Done"`
	CreatedAt   string `json:"CreatedAt"`
}

type userEntity struct {
	aztables.Entity
	UserID       string `json:"UserID"`
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	return json.Marshal(taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.UserID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Done:        t.Done,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	return domain.Task{
		ID:          ent.RowKey,
		UserID:      ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Done:        ent.Done,
		CreatedAt:   createdAt,
	}, nil
}

func encodeUserEntity(u domain.User) ([]byte, error) {
	key := NormalizeEmail(u.Email)
	return json.Marshal(userEntity{
		Entity:       aztables.Entity{PartitionKey: key, RowKey: key},
		UserID:       u.ID,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	return domain.User{
		ID:           ent.UserID,
		Email:        ent.RowKey,
		Name:         ent.Name,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

// NormalizeEmail lower-cases and trims an email for use as a store key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListTasks retrieves all tasks owned by the given user.
func (s *Storage) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeODataString(userID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// GetTask fetches a single task by owner and id. A miss, whether the task
// never existed or belongs to another user, reports NotFound.
func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Task{}, taskNotFoundError{}
		}
		return domain.Task{}, err
	}
	return decodeTaskEntity(resp.Value)
}

// PutTask persists the full task record with overwrite semantics.
func (s *Storage) PutTask(ctx context.Context, task domain.Task) error {
	data, err := encodeTaskEntity(task)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// DeleteTask removes the task. Deleting an already absent task reports
// NotFound.
func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil); err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return taskNotFoundError{}
		}
		return err
	}
	return nil
}

// GetUserByEmail fetches a user record by its normalized email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	key := NormalizeEmail(email)
	resp, err := s.userTable.GetEntity(ctx, key, key, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.User{}, userNotFoundError{}
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// CreateUser inserts a new user record, reporting Conflict when the email is
// already registered.
func (s *Storage) CreateUser(ctx context.Context, user domain.User) error {
	data, err := encodeUserEntity(user)
	if err != nil {
		return err
	}
	if _, err := s.userTable.AddEntity(ctx, data, nil); err != nil {
		if hasStatus(err, http.StatusConflict) {
			return emailTakenError{}
		}
		return err
	}
	return nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
