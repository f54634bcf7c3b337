package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/PratikDhanave/form-relay-service/internal/apperr"
	"github.com/PratikDhanave/form-relay-service/internal/metrics"
	"github.com/PratikDhanave/form-relay-service/internal/requestid"
)

// MessagePath is where every accepted POST redirects to.
const MessagePath = "/message"

// Forwarder ships raw submission bytes to the relay listener.
type Forwarder interface {
	Send(ctx context.Context, body []byte) error
}

// Submit handles POST on any path.
//
//   - Content-Length is required and bounded by maxBody
//   - the body is forwarded as-is, one relay connection per request
//   - the reply is always 302 -> /message, even when the relay is down:
//     persistence is fire-and-forget from the browser's point of view
func Submit(fw Forwarder, maxBody int64, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, status, err := readBody(c.Request, maxBody)
		if err != nil {
			log.Warn().Err(err).Str("kind", apperr.Kind(err)).Str("request_id", requestid.Get(c)).Msg("submission rejected")
			c.String(status, http.StatusText(status))
			return
		}

		// the browser leaving must not cancel a body we already hold
		ctx := context.WithoutCancel(c.Request.Context())
		if err := fw.Send(ctx, body); err != nil {
			log.Error().Err(err).Str("request_id", requestid.Get(c)).Msg("relay send failed")
			metrics.RelaySendsTotal.WithLabelValues("error").Inc()
		} else {
			log.Debug().Int("bytes", len(body)).Str("request_id", requestid.Get(c)).Msg("submission relayed")
			metrics.RelaySendsTotal.WithLabelValues("ok").Inc()
		}

		c.Redirect(http.StatusFound, MessagePath)
	}
}

// readBody reads exactly Content-Length bytes. On failure it returns the
// HTTP status to answer with and an error wrapping apperr.ErrBadRequest.
func readBody(r *http.Request, maxBody int64) ([]byte, int, error) {
	raw := r.Header.Get("Content-Length")
	if raw == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("missing Content-Length: %w", apperr.ErrBadRequest)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid Content-Length %q: %w", raw, apperr.ErrBadRequest)
	}
	if n > maxBody {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("body of %d bytes exceeds %d: %w", n, maxBody, apperr.ErrBadRequest)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("short body: %v: %w", err, apperr.ErrBadRequest)
	}
	return body, 0, nil
}
