package report

import (
	"time"

	"github.com/oiclass/oiclass/core"
)

type Report struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name"`
	AuthorID       string    `json:"author_id"`
	Title          string    `json:"title"`
	Period         string    `json:"period"`
	Content        string    `json:"content"`
	ContentHTML    string    `json:"content_html,omitempty"`
	SolvedCount    int       `json:"solved_count"`
	AttemptedCount int       `json:"attempted_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type NewReport struct {
	StudentID string `json:"student_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Period    string `json:"period" validate:"max=100"`
	Content   string `json:"content" validate:"required"`
}

func (nr *NewReport) Clean() {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.Title = core.CleanString(nr.Title)
	nr.Period = core.CleanString(nr.Period)
}

type UpdateReport struct {
	Title   *string `json:"title" validate:"omitempty,notblank,max=200"`
	Period  *string `json:"period" validate:"omitempty,max=100"`
	Content *string `json:"content" validate:"omitempty,notblank"`
	// RefreshStats retakes the solved/attempted snapshot.
	RefreshStats bool `json:"refresh_stats"`
}

func (ur *UpdateReport) Clean() {
	if ur.Title != nil {
		t := core.CleanString(*ur.Title)
		ur.Title = &t
	}
	if ur.Period != nil {
		p := core.CleanString(*ur.Period)
		ur.Period = &p
	}
}

type QueryFilter struct {
	StudentID string `query:"student"`
	// StudentIDs restricts the result to these students; nil means no restriction.
	StudentIDs []string `query:"-"`
}
