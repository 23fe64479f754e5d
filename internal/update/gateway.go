package update

import "context"

// ChunkFunc is called for every chunk received while downloading.
// total is nil when the content length is unknown.
type ChunkFunc func(chunkSize int, total *uint64)

// Gateway queries the remote release source.
type Gateway interface {
	// Check returns nil when the running version is the newest one.
	Check(ctx context.Context) (Candidate, error)
}

// Candidate is a download-capable handle for a newer release.
type Candidate interface {
	Release() Release

	// DownloadAndInstall fetches and applies the release. onFinished is called
	// once the bytes are received, before installation completes.
	DownloadAndInstall(ctx context.Context, onChunk ChunkFunc, onFinished func()) error
}

// GatewayProvider obtains the gateway for one operation.
type GatewayProvider func() (Gateway, error)

// StaticGateway always provides gw.
func StaticGateway(gw Gateway) GatewayProvider {
	return func() (Gateway, error) {
		return gw, nil
	}
}

// Restarter replaces the running process. Restart returns only on failure.
type Restarter interface {
	Restart() error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func() error

func (f RestarterFunc) Restart() error {
	return f()
}
