package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"livestream/internal/core/domain"
	"livestream/pkg/circuitbreaker"
	"livestream/pkg/retry"
	"livestream/pkg/tracing"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultServer = "_defaultServer_"
	defaultVHost  = "_defaultVHost_"
)

// Config describes how to reach the media server's REST API.
type Config struct {
	Host     string
	Username string
	Password string
	Timeout  time.Duration
	Retry    retry.Config
	Breaker  circuitbreaker.Config
}

// StatusError is returned when the media server answers with a non-2xx code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("media server responded %d: %s", e.StatusCode, e.Body)
}

// Client issues stream control commands to the media server.
type Client struct {
	http    *resty.Client
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Host, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.Username != "" {
		c.SetBasicAuth(cfg.Username, cfg.Password)
	}

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.DefaultConfig()
	}

	breaker := circuitbreaker.New(cfg.Breaker)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("media server circuit breaker state changed", "from", from.String(), "to", to.String())
	})

	return &Client{
		http:    c,
		retry:   cfg.Retry,
		breaker: breaker,
		logger:  logger,
	}
}

// StopStream disconnects the incoming stream published on appInstance.
// Client errors are not retried; network failures and 5xx are, and only
// those count against the circuit breaker.
func (c *Client) StopStream(ctx context.Context, appName, appInstance string, streamID domain.StreamID) error {
	ctx, span := tracing.TraceMediaRequest(ctx, "stop_stream", appInstance)
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.StreamIDKey.String(string(streamID)))

	path := disconnectPath(appName, appInstance, streamID)

	var rejected error
	err := c.breaker.Execute(func() error {
		err := c.disconnect(ctx, path)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			rejected = err
			return nil
		}
		return err
	})
	if err == nil {
		err = rejected
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Errorw("media server stop failed",
			"app_name", appName,
			"app_instance", appInstance,
			"stream_id", streamID,
			"error", err)
		return err
	}

	c.logger.Infow("media stream disconnected",
		"app_name", appName,
		"app_instance", appInstance,
		"stream_id", streamID)
	return nil
}

func (c *Client) disconnect(ctx context.Context, path string) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			Put(path)
		if err != nil {
			return err
		}
		if resp.IsError() {
			statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
			if resp.StatusCode() < http.StatusInternalServerError {
				return retry.Permanent(statusErr)
			}
			return statusErr
		}
		return nil
	})
}

func disconnectPath(appName, appInstance string, streamID domain.StreamID) string {
	return fmt.Sprintf("/v2/servers/%s/vhosts/%s/applications/%s/instances/%s/incomingstreams/%s/actions/disconnectStream",
		defaultServer, defaultVHost,
		url.PathEscape(appName),
		url.PathEscape(appInstance),
		url.PathEscape(string(streamID)))
}
