package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mtiwari1/gophermedia/internal/resilience"
)

const maxResponseBytes = 64 << 20

// ErrInvalidResponse marks a 2xx response that is not usable.
var ErrInvalidResponse = errors.New("invalid response")

// StatusError is a non-2xx answer from the inference service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("inference service returned %d", e.Code)
	}
	return fmt.Sprintf("inference service returned %d: %s", e.Code, e.Body)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// field is a response key that must be present; nonNull also rejects null.
type field struct {
	name    string
	nonNull bool
}

type client struct {
	base string
	http *http.Client
}

// call performs one HTTP exchange and classifies the outcome.
func (c *client) call(ctx context.Context, method, endpoint string, timeout time.Duration, body any, required []field, out any) error {
	op := "inference " + endpoint
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return resilience.Permanent(op, fmt.Errorf("encode request: %w", err))
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, rdr)
	if err != nil {
		return resilience.Permanent(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if perr := parent.Err(); perr != nil {
			return perr
		}
		return resilience.Transient(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resilience.Transient(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Body: snippet(data)}
		if retryableStatus(resp.StatusCode) {
			return resilience.Transient(op, serr)
		}
		return resilience.Permanent(op, serr)
	}

	if err := decode(data, required, out); err != nil {
		return resilience.Permanent(op, err)
	}
	return nil
}

func decode(data []byte, required []field, out any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for _, f := range required {
		v, ok := raw[f.name]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrInvalidResponse, f.name)
		}
		if f.nonNull && string(bytes.TrimSpace(v)) == "null" {
			return fmt.Errorf("%w: %q is null", ErrInvalidResponse, f.name)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 256
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
