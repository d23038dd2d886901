package effect

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxDrainBytes caps how much of a display's response body is read.
const maxDrainBytes = 64 << 10

// fetch starts playback on a remote display by requesting its URL.
func (r *Runner) fetch(ctx context.Context, e Effect) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", e.URL, err)
	}
	defer resp.Body.Close()

	//nolint:errcheck // Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: %d", ErrRemoteStatus, e.URL, resp.StatusCode)
	}
	return nil
}
