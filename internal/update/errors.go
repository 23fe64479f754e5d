package update

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckTimeout is reported when the gateway does not answer a check in time.
	ErrCheckTimeout = errors.New("update check timed out")

	// ErrNoUpdateAvailable rejects a download when no newer version is known.
	ErrNoUpdateAvailable = errors.New("no update available to download")

	// ErrDownloadInProgress rejects a download while another one is running.
	ErrDownloadInProgress = errors.New("download already in progress")
)

// GatewayUnavailableError is returned when the release gateway cannot be obtained.
type GatewayUnavailableError struct {
	Err error // Underlying error, if any
}

func (e *GatewayUnavailableError) Error() string {
	if e.Err == nil {
		return "failed to get updater"
	}

	return fmt.Sprintf("failed to get updater: %v", e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

// CheckFailedError wraps a gateway failure while looking for a release.
type CheckFailedError struct {
	Err error
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("update check failed: %v", e.Err)
}

func (e *CheckFailedError) Unwrap() error {
	return e.Err
}

// DownloadFailedError wraps a failure while downloading or applying an update.
// A new check is required before retrying.
type DownloadFailedError struct {
	Version string // Version that was being installed
	Err     error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download/install of %s failed: %v", e.Version, e.Err)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err leaves the updater able to retry the same step.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}

	var dlErr *DownloadFailedError

	return !errors.As(err, &dlErr)
}
