package knowledge

import (
	"time"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/video"
)

// Problem sources
const (
	SourceLuogu  = "luogu"
	SourceGESP   = "gesp"
	SourceCustom = "custom"
)

type (
	KnowledgePoint struct {
		ID          string        `json:"id"`
		Title       string        `json:"title"`
		Group       string        `json:"group"`
		Category    string        `json:"category"`
		Content     string        `json:"content"`
		ContentHTML string        `json:"content_html,omitempty"`
		Position    int           `json:"position"`
		AuthorID    string        `json:"author_id"`
		CreatedAt   time.Time     `json:"created_at"`
		UpdatedAt   time.Time     `json:"updated_at"`
		Problems    []Problem     `json:"problems,omitempty"`
		Videos      []video.Video `json:"videos,omitempty"`
	}

	Problem struct {
		ID               string    `json:"id"`
		KnowledgePointID string    `json:"knowledge_point_id"`
		Title            string    `json:"title"`
		Source           string    `json:"source"`
		SourceID         string    `json:"source_id"`
		URL              string    `json:"url"`
		Difficulty       string    `json:"difficulty"`
		Position         int       `json:"position"`
		CreatedAt        time.Time `json:"created_at"`
		UpdatedAt        time.Time `json:"updated_at"`
	}

	// Group lists the categories used inside a knowledge point group.
	Group struct {
		Name       string   `json:"name"`
		Categories []string `json:"categories"`
	}

	GroupCategory struct {
		Group    string `db:"group_name"`
		Category string `db:"category"`
	}
)

type NewPoint struct {
	Title    string `json:"title" validate:"required,max=200"`
	Group    string `json:"group" validate:"max=100"`
	Category string `json:"category" validate:"max=100"`
	Content  string `json:"content"`
	Position int    `json:"position" validate:"gte=0"`
}

func (np *NewPoint) Clean() {
	np.Title = core.CleanString(np.Title)
	np.Group = core.CleanString(np.Group)
	np.Category = core.CleanString(np.Category)
}

type UpdatePoint struct {
	Title    *string `json:"title" validate:"omitempty,notblank,max=200"`
	Group    *string `json:"group" validate:"omitempty,max=100"`
	Category *string `json:"category" validate:"omitempty,max=100"`
	Content  *string `json:"content"`
	Position *int    `json:"position" validate:"omitempty,gte=0"`
}

func (up *UpdatePoint) Clean() {
	cleanPtr(&up.Title)
	cleanPtr(&up.Group)
	cleanPtr(&up.Category)
}

type NewProblem struct {
	Title      string `json:"title" validate:"required,max=200"`
	Source     string `json:"source" validate:"required,oneof=luogu gesp custom"`
	SourceID   string `json:"source_id" validate:"required_unless=Source custom,max=64"`
	URL        string `json:"url" validate:"omitempty,url,max=500"`
	Difficulty string `json:"difficulty" validate:"max=50"`
	Position   int    `json:"position" validate:"gte=0"`
}

func (np *NewProblem) Clean() {
	np.Title = core.CleanString(np.Title)
	np.Source = core.CleanString(np.Source, true /* lower */)
	if np.Source == "" {
		np.Source = SourceCustom
	}
	np.SourceID = core.CleanString(np.SourceID)
	if np.Source == SourceLuogu {
		np.SourceID = normalizeLuoguPID(np.SourceID)
	}
	np.URL = core.CleanString(np.URL)
	np.Difficulty = core.CleanString(np.Difficulty)
}

type UpdateProblem struct {
	KnowledgePointID *string `json:"knowledge_point_id"`
	Title            *string `json:"title" validate:"omitempty,notblank,max=200"`
	URL              *string `json:"url" validate:"omitempty,url,max=500"`
	Difficulty       *string `json:"difficulty" validate:"omitempty,max=50"`
	Position         *int    `json:"position" validate:"omitempty,gte=0"`
}

func (up *UpdateProblem) Clean() {
	cleanPtr(&up.KnowledgePointID)
	cleanPtr(&up.Title)
	cleanPtr(&up.URL)
	cleanPtr(&up.Difficulty)
}

type AttachVideo struct {
	VideoID  string `json:"video_id" validate:"required"`
	Position int    `json:"position" validate:"gte=0"`
}

type QueryFilter struct {
	Search   string `query:"search"`
	Group    string `query:"group"`
	Category string `query:"category"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Group = core.CleanString(f.Group)
	f.Category = core.CleanString(f.Category)
}

func cleanPtr(s **string) {
	if *s != nil {
		v := core.CleanString(**s)
		*s = &v
	}
}
