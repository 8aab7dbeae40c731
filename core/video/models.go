package video

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oiclass/oiclass/core"
)

// Upload statuses
const (
	UploadUploading  = "uploading"
	UploadAssembling = "assembling"
	UploadDone       = "done"
	UploadFailed     = "failed"
)

// Video statuses
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// MaxChunks caps the number of chunks of a single upload.
const MaxChunks = 10000

type (
	// Upload is a resumable chunked upload session.
	Upload struct {
		ID          string    `json:"id"`
		OwnerID     string    `json:"owner_id"`
		Title       string    `json:"title"`
		Filename    string    `json:"filename"`
		Size        int64     `json:"size"`
		ChunkSize   int64     `json:"chunk_size"`
		TotalChunks int       `json:"total_chunks"`
		Status      string    `json:"status"`
		VideoID     string    `json:"video_id,omitempty"`
		Received    []int     `json:"received"`
		Missing     []int     `json:"missing"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	Video struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		OwnerID     string    `json:"owner_id"`
		Status      string    `json:"status"`
		Error       string    `json:"error,omitempty"`
		Duration    float64   `json:"duration"`
		PlaylistURL string    `json:"playlist_url"`
		SourceSize  int64     `json:"source_size"`
		SourcePath  string    `json:"-"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
)

// ChunkLength returns the expected size of the chunk at index.
func (u Upload) ChunkLength(index int) int64 {
	if index == u.TotalChunks-1 {
		return u.Size - u.ChunkSize*int64(u.TotalChunks-1)
	}
	return u.ChunkSize
}

// SetReceived stores the received chunk indexes (sorted) and derives the missing ones.
func (u *Upload) SetReceived(received []int) {
	got := make(map[int]bool, len(received))
	u.Received = make([]int, 0, len(received))
	for _, idx := range received {
		if !got[idx] {
			got[idx] = true
			u.Received = append(u.Received, idx)
		}
	}
	sort.Ints(u.Received)
	u.Missing = make([]int, 0, u.TotalChunks-len(got))
	for i := 0; i < u.TotalChunks; i++ {
		if !got[i] {
			u.Missing = append(u.Missing, i)
		}
	}
}

func (v Video) IsReady() bool { return v.Status == StatusReady }

// MissingChunksError is returned when completing an upload that lacks chunks.
type MissingChunksError struct {
	Missing []int
}

func (err MissingChunksError) Error() string {
	idx := make([]string, 0, len(err.Missing))
	for _, i := range err.Missing {
		idx = append(idx, strconv.Itoa(i))
	}
	return "missing chunks: " + strings.Join(idx, ",")
}

type NewUpload struct {
	Title     string `json:"title" validate:"required,max=200"`
	Filename  string `json:"filename" validate:"required,max=255"`
	Size      int64  `json:"size" validate:"required,gt=0"`
	ChunkSize int64  `json:"chunk_size" validate:"required,gt=0"`
}

func (nu *NewUpload) Clean() {
	nu.Title = core.CleanString(nu.Title)
	nu.Filename = core.CleanString(nu.Filename)
}

type UpdateVideo struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (uv *UpdateVideo) Clean() {
	if uv.Title != nil {
		t := core.CleanString(*uv.Title)
		uv.Title = &t
	}
	if uv.Description != nil {
		d := core.CleanString(*uv.Description)
		uv.Description = &d
	}
}

type QueryFilter struct {
	Search  string `query:"search"`
	Status  string `query:"status"`
	OwnerID string `query:"owner"`
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.Status = core.CleanString(f.Status, true)
	f.OwnerID = core.CleanString(f.OwnerID)
}
