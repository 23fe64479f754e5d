package github

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/updaterd/internal/cleanup"
	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/progress"
	"github.com/italolelis/updaterd/internal/update"
	"github.com/minio/selfupdate"
)

// ErrChecksumMismatch is returned when a downloaded asset does not match its checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Candidate is a newer release with a downloadable asset.
type Candidate struct {
	gateway *Gateway
	release update.Release

	assetURL     string
	assetSize    int64
	checksumsURL string
}

func (c *Candidate) Release() update.Release {
	return c.release
}

// DownloadAndInstall stages the asset next to the install path, verifies it
// and swaps it in. The replaced binary is kept with an ".old" suffix.
func (c *Candidate) DownloadAndInstall(ctx context.Context, onChunk update.ChunkFunc, onFinished func()) error {
	return c.gateway.telemetry.InstrumentGatewayOperation(ctx, gatewayName, "download", func(ctx context.Context) error {
		return c.downloadAndInstall(ctx, onChunk, onFinished)
	})
}

func (c *Candidate) downloadAndInstall(ctx context.Context, onChunk update.ChunkFunc, onFinished func()) error {
	logger := logctx.LoggerFromContext(ctx).With("gateway", gatewayName, "version", c.release.Version)

	if _, err := os.Stat(c.gateway.installPath); err != nil {
		return fmt.Errorf("no installed binary to replace: %w", err)
	}

	var want string

	if c.checksumsURL != "" {
		sum, err := c.expectedChecksum(ctx)
		if err != nil {
			return err
		}

		want = sum
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.assetURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.gateway.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, URL: c.assetURL}
	}

	total := resp.ContentLength
	if total < 0 && c.assetSize > 0 {
		total = c.assetSize
	}

	installPath := c.gateway.installPath
	backup := installPath + cleanup.BackupSuffix

	opts := selfupdate.Options{
		TargetPath:  installPath,
		TargetMode:  0o755,
		OldSavePath: backup,
	}

	if want != "" {
		sum, err := hex.DecodeString(want)
		if err != nil {
			return fmt.Errorf("malformed checksum for %s: %w", c.gateway.assetName, err)
		}

		opts.Checksum = sum
	}

	hasher := sha256.New()
	body := io.TeeReader(progress.NewReader(resp.Body, total, onChunk), hasher)

	err = selfupdate.PrepareAndCheckBinary(body, opts)
	if got := hex.EncodeToString(hasher.Sum(nil)); want != "" && !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}

	if err != nil {
		return fmt.Errorf("failed to stage asset: %w", err)
	}

	if total > 0 {
		logger.InfoContext(ctx, "asset downloaded", "size", humanize.Bytes(uint64(total)))
	} else {
		logger.InfoContext(ctx, "asset downloaded")
	}

	if onFinished != nil {
		onFinished()
	}

	if err := selfupdate.CommitBinary(opts); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			logger.ErrorContext(ctx, "failed to restore previous binary", "err", rerr)
		}

		return fmt.Errorf("failed to install asset: %w", err)
	}

	// The rename keeps the old binary's mtime; retention counts from the swap.
	now := time.Now()
	if err := os.Chtimes(backup, now, now); err != nil {
		logger.WarnContext(ctx, "failed to touch backup", "file", backup, "err", err)
	}

	return nil
}

// expectedChecksum reads the checksums asset and returns the digest listed for this asset.
func (c *Candidate) expectedChecksum(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.checksumsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.gateway.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download checksums: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, URL: c.checksumsURL}
	}

	sum, err := findChecksum(io.LimitReader(resp.Body, maxMetadataSize), c.gateway.assetName)
	if err != nil {
		return "", err
	}

	return sum, nil
}

// findChecksum parses "<hex>  <name>" lines as written by sha256sum.
func findChecksum(r io.Reader, name string) (string, error) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}

		if strings.TrimPrefix(fields[1], "*") == name {
			return fields[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read checksums: %w", err)
	}

	return "", fmt.Errorf("no checksum listed for %s", name)
}
