package domain

import "time"

// Task is a single to-do item owned by exactly one user. Ownership is fixed
// at creation and never reassigned.
type Task struct {
	ID          string    `json:"taskId"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Done        bool      `json:"done"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TaskPatch carries a partial update. Pointer fields distinguish "absent"
// from explicit zero values: a nil field keeps the stored value, while an
// explicit false or "" overwrites it.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Done        *bool   `json:"done"`
}

// Apply merges the patch into the task. ID, UserID and CreatedAt are never
// touched.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
}
