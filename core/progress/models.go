package progress

import (
	"time"

	"github.com/oiclass/oiclass/core"
)

// Statuses
const (
	StatusAttempted = "attempted"
	StatusSolved    = "solved"
)

var statuses = map[string]bool{StatusAttempted: true, StatusSolved: true}

type (
	ProblemProgress struct {
		UserID           string    `json:"user_id" db:"user_id"`
		ProblemID        string    `json:"problem_id" db:"problem_id"`
		KnowledgePointID string    `json:"knowledge_point_id" db:"knowledge_point_id"`
		ProblemTitle     string    `json:"problem_title" db:"problem_title"`
		Source           string    `json:"source" db:"source"`
		SourceID         string    `json:"source_id" db:"source_id"`
		Status           string    `json:"status" db:"status"`
		UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
	}

	// Summary is a student's progress on one knowledge point.
	Summary struct {
		KnowledgePointID string `json:"knowledge_point_id" db:"knowledge_point_id"`
		Title            string `json:"title" db:"title"`
		Group            string `json:"group" db:"group_name"`
		Total            int    `json:"total" db:"total"`
		Attempted        int    `json:"attempted" db:"attempted"`
		Solved           int    `json:"solved" db:"solved"`
	}

	Totals struct {
		Attempted int `json:"attempted" db:"attempted"`
		Solved    int `json:"solved" db:"solved"`
	}

	// SyncResult reports a bulk mark-solved.
	SyncResult struct {
		Matched int      `json:"matched"`
		Updated int      `json:"updated"`
		Unknown []string `json:"unknown"`
	}
)

type SetStatus struct {
	Status string `json:"status" validate:"required,problemstatus"`
}

func (ss *SetStatus) Clean() {
	ss.Status = core.CleanString(ss.Status, true /* lower */)
}

type QueryFilter struct {
	KnowledgePointID string `query:"knowledge_point"`
	Status           string `query:"status"`
}

func (f *QueryFilter) Clean() {
	f.KnowledgePointID = core.CleanString(f.KnowledgePointID)
	f.Status = core.CleanString(f.Status, true)
}
