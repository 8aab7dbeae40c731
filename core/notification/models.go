package notification

import "time"

// Kinds
const (
	KindBindingRequested = "binding_requested"
	KindBindingAccepted  = "binding_accepted"
	KindBindingRejected  = "binding_rejected"
	KindBindingCancelled = "binding_cancelled"
	KindPostApproved     = "post_approved"
	KindPostRejected     = "post_rejected"
	KindContestCreated   = "contest_created"
	KindReportPublished  = "report_published"
	KindVideoReady       = "video_ready"
	KindVideoFailed      = "video_failed"
	KindProgressSynced   = "progress_synced"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

// NewNotification is what producers hand to Service.Notify; it is copied for every recipient.
type NewNotification struct {
	Kind  string
	Title string
	Body  string
	Link  string
}

type QueryFilter struct {
	Unread bool `query:"unread"`
}

// Page is one page of a user's notifications.
type Page struct {
	Count   int            `json:"count"`
	Unread  int            `json:"unread"`
	Results []Notification `json:"results"`
}

func newPage(count, unread int, results []Notification) Page {
	if results == nil {
		results = []Notification{}
	}
	return Page{Count: count, Unread: unread, Results: results}
}
