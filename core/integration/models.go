package integration

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/oiclass/oiclass/core"
)

type (
	// LuoguProblem is what the scraper reports for `problem <pid>`.
	LuoguProblem struct {
		PID        string     `json:"pid"`
		Title      string     `json:"title"`
		Difficulty FlexString `json:"difficulty"`
		Tags       []string   `json:"tags"`
		URL        string     `json:"url"`
	}

	// LuoguUser is what the scraper reports for `user <uid>`.
	LuoguUser struct {
		UID    FlexString `json:"uid"`
		Passed []string   `json:"passed"`
	}

	// GespExam is one exam result reported for `records <candidate_id>`.
	GespExam struct {
		Level    int     `json:"level"`
		Language string  `json:"language"`
		Score    float64 `json:"score"`
		Passed   bool    `json:"passed"`
		ExamDate string  `json:"exam_date"`
	}

	GespRecord struct {
		ID          string    `json:"id"`
		StudentID   string    `json:"student_id"`
		CandidateID string    `json:"candidate_id"`
		Level       int       `json:"level"`
		Language    string    `json:"language"`
		Score       float64   `json:"score"`
		Passed      bool      `json:"passed"`
		ExamDate    string    `json:"exam_date"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
)

// FlexString accepts a JSON string or number.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

type ImportProblem struct {
	KnowledgePointID string `json:"knowledge_point_id" validate:"required"`
	PID              string `json:"pid" validate:"required,max=32"`
}

func (ip *ImportProblem) Clean() {
	ip.KnowledgePointID = core.CleanString(ip.KnowledgePointID)
	ip.PID = core.CleanString(ip.PID)
}

type SyncGesp struct {
	CandidateID string `json:"candidate_id" validate:"required,max=64"`
}

func (sg *SyncGesp) Clean() {
	sg.CandidateID = strings.ToUpper(core.CleanString(sg.CandidateID))
}
