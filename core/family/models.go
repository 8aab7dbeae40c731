package family

import (
	"time"

	"github.com/oiclass/oiclass/core"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

type BindingRequest struct {
	ID          string     `json:"id"`
	ParentID    string     `json:"parent_id"`
	ParentName  string     `json:"parent_name"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at"`
}

// NewRequest is a parent's request to bind a student, found by username or email.
type NewRequest struct {
	Student string `json:"student" validate:"required"`
	Message string `json:"message" validate:"max=500"`
}

func (nr *NewRequest) Clean() {
	nr.Student = core.CleanString(nr.Student, true /* lower */)
	nr.Message = core.CleanString(nr.Message)
}

type QueryFilter struct {
	Status   string `query:"status"`
	ParentID string
	// UserID matches requests where the user is either side.
	UserID string
	// StudentID matches requests of this student.
	StudentID string
}
