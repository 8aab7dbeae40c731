package blog

import (
	"time"

	"github.com/oiclass/oiclass/core"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusRejected  = "rejected"
)

// transitions lists the statuses each status may move to.
var transitions = map[string]map[string]bool{
	StatusDraft:     {StatusPending: true},
	StatusRejected:  {StatusPending: true},
	StatusPending:   {StatusPublished: true, StatusRejected: true, StatusDraft: true},
	StatusPublished: {StatusDraft: true},
}

// CanTransition reports whether a post may move from one status to another.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

type Post struct {
	ID           string     `json:"id"`
	AuthorID     string     `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Content      string     `json:"content"`
	ContentHTML  string     `json:"content_html,omitempty"`
	Tags         []string   `json:"tags"`
	Status       string     `json:"status"`
	RejectReason string     `json:"reject_reason,omitempty"`
	PublishedAt  *time.Time `json:"published_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p Post) IsPublished() bool { return p.Status == StatusPublished }

type NewPost struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Summary string   `json:"summary" validate:"max=500"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"max=10,dive,max=30,excludes=0x2C"`
}

func (np *NewPost) Clean() {
	np.Title = core.CleanString(np.Title)
	np.Summary = core.CleanString(np.Summary)
	np.Tags = cleanTags(np.Tags)
}

type UpdatePost struct {
	Title   *string  `json:"title" validate:"omitempty,notblank,max=200"`
	Summary *string  `json:"summary" validate:"omitempty,max=500"`
	Content *string  `json:"content" validate:"omitempty,notblank"`
	Tags    []string `json:"tags" validate:"omitempty,max=10,dive,max=30,excludes=0x2C"`
}

func (up *UpdatePost) Clean() {
	if up.Title != nil {
		t := core.CleanString(*up.Title)
		up.Title = &t
	}
	if up.Summary != nil {
		s := core.CleanString(*up.Summary)
		up.Summary = &s
	}
	if up.Tags != nil {
		up.Tags = cleanTags(up.Tags)
	}
}

type RejectPost struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type QueryFilter struct {
	Search   string `query:"search"`
	Tag      string `query:"tag"`
	AuthorID string `query:"author"`
	Mine     bool   `query:"mine"`
	Status   string `query:"status"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Tag = core.CleanString(f.Tag, true)
	f.AuthorID = core.CleanString(f.AuthorID)
	f.Status = core.CleanString(f.Status, true)
}

// cleanTags lowers, trims and de-duplicates tags, keeping their order.
func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range core.CleanStrings(tags, true) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
