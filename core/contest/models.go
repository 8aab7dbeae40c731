package contest

import (
	"time"

	"github.com/oiclass/oiclass/core"
)

// Statuses, derived from the current time
const (
	StatusUpcoming = "upcoming"
	StatusRunning  = "running"
	StatusEnded    = "ended"
)

type Contest struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Platform    string    `json:"platform"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusAt returns the status of c at t.
func (c Contest) StatusAt(t time.Time) string {
	switch {
	case t.Before(c.StartAt):
		return StatusUpcoming
	case t.Before(c.EndAt):
		return StatusRunning
	default:
		return StatusEnded
	}
}

type NewContest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	URL         string    `json:"url" validate:"omitempty,url,max=500"`
	Platform    string    `json:"platform" validate:"max=50"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
}

func (nc *NewContest) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.URL = core.CleanString(nc.URL)
	nc.Platform = core.CleanString(nc.Platform)
	nc.StartAt = nc.StartAt.UTC().Truncate(time.Microsecond)
	nc.EndAt = nc.EndAt.UTC().Truncate(time.Microsecond)
}

type UpdateContest struct {
	Title       *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	URL         *string    `json:"url" validate:"omitempty,url,max=500"`
	Platform    *string    `json:"platform" validate:"omitempty,max=50"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
}

func (uc *UpdateContest) Clean() {
	for _, s := range []**string{&uc.Title, &uc.URL, &uc.Platform} {
		if *s != nil {
			v := core.CleanString(**s)
			*s = &v
		}
	}
	for _, t := range []**time.Time{&uc.StartAt, &uc.EndAt} {
		if *t != nil {
			v := (**t).UTC().Truncate(time.Microsecond)
			*t = &v
		}
	}
}

type QueryFilter struct {
	Status   string `query:"status"`
	Platform string `query:"platform"`
}

func (f *QueryFilter) Clean() {
	f.Status = core.CleanString(f.Status, true)
	f.Platform = core.CleanString(f.Platform)
}
