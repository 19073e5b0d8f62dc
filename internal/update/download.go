package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"fseqgen/internal/fileutil"
	"fseqgen/internal/logging"
)

// ProgressFunc receives bytes received so far and the expected total, which
// is -1 when the server does not say.
type ProgressFunc func(received, total int64)

// Download streams the asset at rawURL into dir and returns the saved path.
// The body is staged in a temporary file and only moved into place once
// complete.
func (c *Checker) Download(ctx context.Context, rawURL, dir string, progress ProgressFunc) (string, error) {
	name, err := assetFileName(rawURL)
	if err != nil {
		return "", &Error{Kind: ErrDownload, Op: "parse url", Err: err}
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Kind: ErrDownload, Op: "create download dir", Err: err}
	}
	target := filepath.Join(dir, name)

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return "", &Error{Kind: ErrDownload, Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")
	resp, err := c.client().Do(req)
	if err != nil {
		return "", &Error{Kind: ErrDownload, Op: "fetch asset", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: ErrDownload, Op: "fetch asset", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	tmp, err := os.CreateTemp("", "fseqgen-update-*")
	if err != nil {
		return "", &Error{Kind: ErrDownload, Op: "create temp file", Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	counter := &progressWriter{total: resp.ContentLength, report: progress}
	written, copyErr := io.Copy(io.MultiWriter(tmp, counter), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return "", &Error{Kind: ErrDownload, Op: "save asset", Err: copyErr}
	}
	if closeErr != nil {
		return "", &Error{Kind: ErrDownload, Op: "save asset", Err: closeErr}
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return "", &Error{Kind: ErrDownload, Op: "save asset", Err: fmt.Errorf("received %d of %d bytes", written, resp.ContentLength)}
	}
	if err := fileutil.MoveFile(tmpPath, target); err != nil {
		return "", &Error{Kind: ErrDownload, Op: "move asset into place", Err: err}
	}

	c.logger().Info("update downloaded",
		logging.String(logging.FieldEventType, "update_downloaded"),
		logging.String("path", target),
		logging.Int64("bytes", written),
	)
	return target, nil
}

func assetFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "..") {
		return "", errors.New("url does not name a file")
	}
	return name, nil
}

type progressWriter struct {
	received int64
	total    int64
	report   ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.received += int64(len(b))
	if p.report != nil {
		p.report(p.received, p.total)
	}
	return len(b), nil
}
