package update

import "time"

// Descriptor describes an update offered by the release source.
type Descriptor struct {
	Version        string  `json:"version"`
	CurrentVersion string  `json:"currentVersion"`
	Body           *string `json:"body,omitempty"`
	Date           *string `json:"date,omitempty"`
}

// Progress is a point-in-time view of an update download.
type Progress struct {
	Downloaded     uint64  `json:"downloaded"`
	Total          uint64  `json:"total"`
	Percent        float64 `json:"percent"`
	BytesPerSecond uint64  `json:"bytesPerSecond"`
}

// CheckResult is returned by every check, successful or not.
type CheckResult struct {
	Available bool        `json:"available"`
	Info      *Descriptor `json:"info,omitempty"`
	Error     *string     `json:"error,omitempty"`
}

// Status is the coarse updater state shown to observers.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusChecking    Status = "checking"
	StatusAvailable   Status = "available"
	StatusDownloading Status = "downloading"
)

// Release is what a gateway knows about a newer version.
type Release struct {
	Version     string
	Notes       string
	PublishedAt time.Time
}

func (r Release) descriptor(currentVersion string) Descriptor {
	d := Descriptor{
		Version:        r.Version,
		CurrentVersion: currentVersion,
	}

	if r.Notes != "" {
		notes := r.Notes
		d.Body = &notes
	}

	if !r.PublishedAt.IsZero() {
		date := r.PublishedAt.UTC().Format(time.RFC3339)
		d.Date = &date
	}

	return d
}

func errorResult(msg string) CheckResult {
	return CheckResult{Available: false, Error: &msg}
}
