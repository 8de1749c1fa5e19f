package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/rangedl/internal/status"
)

// Checkpoint records how far a download to a local file has progressed so a
// later run can resume it with a range request.
type Checkpoint struct {
	ID       uuid.UUID     `json:"id"`
	URL      string        `json:"url"`
	Output   string        `json:"output"`
	FileSize int64         `json:"file_size"`
	Received int64         `json:"received"`
	SHA256   string        `json:"sha256,omitempty"`
	Status   status.Status `json:"status"`
	Error    string        `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint returns a pending checkpoint for url written to output.
func NewCheckpoint(url, output string) *Checkpoint {
	now := time.Now()
	return &Checkpoint{
		ID:        uuid.New(),
		URL:       url,
		Output:    output,
		Status:    status.Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Percent returns the completed share in [0, 100], or 0 while the size is unknown.
func (c *Checkpoint) Percent() float64 {
	if c.FileSize <= 0 {
		return 0
	}
	return float64(c.Received) * 100 / float64(c.FileSize)
}

type Repository interface {
	Save(cp *Checkpoint) error
	Find(id uuid.UUID) (*Checkpoint, error)
	FindByURL(url, output string) (*Checkpoint, error)
	FindAll() ([]*Checkpoint, error)
	Delete(id uuid.UUID) error
	Close() error
}
