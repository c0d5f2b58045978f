package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"market-sentinel/src/helpers"
	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// StatusError is a non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Blocked reports a rate-limit or forbidden response, which triggers a proxy
// rotation before the next attempt.
func (e *StatusError) Blocked() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusForbidden
}

// -----------------------------------------------------------------------------

// NetworkManager performs rate-limited GETs with bounded exponential retry and
// proxy rotation.
type NetworkManager struct {
	ProxyManager interfaces.IProxyManager
	Limiter      *rate.Limiter
	Logger       *logger.Logger
	MaxRetries   int
	// RetryInterval is the first backoff step.
	RetryInterval time.Duration

	client *resty.Client
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg models.MNetworkConfig, log *logger.Logger) *NetworkManager {
	if log == nil {
		log = logger.NewLogger("NetworkManager")
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	nm := &NetworkManager{
		ProxyManager:  helpers.NewProxyManager(cfg.Proxies, cfg.UserAgent),
		Limiter:       rate.NewLimiter(rate.Limit(rps), rps),
		Logger:        log,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: time.Second,
		client:        resty.New().SetTimeout(timeout),
	}
	nm.applyProxy()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) applyProxy() {
	if !nm.ProxyManager.HasProxies() {
		nm.client.RemoveProxy()
		return
	}
	nm.client.SetProxy(nm.ProxyManager.GetCurrentProxy())
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}
	nm.ProxyManager.RotateProxy()
	nm.applyProxy()
}

// -----------------------------------------------------------------------------

// Get performs a GET request and returns the body. Failures after the last
// retry are returned as *helpers.TransportError.
func (nm *NetworkManager) Get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	var (
		body    []byte
		attempt int
	)

	operation := func() error {
		attempt++
		if err := nm.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		resp, err := nm.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetHeader("User-Agent", nm.ProxyManager.GetUserAgent()).
			Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			nm.Logger.Info("Request failed (attempt %d/%d): %v", attempt, nm.MaxRetries+1, err)
			return err
		}

		if resp.StatusCode() != http.StatusOK {
			statusErr := &StatusError{StatusCode: resp.StatusCode()}
			if statusErr.Blocked() {
				nm.Logger.Info("Request blocked (%d). Rotating proxy.", resp.StatusCode())
				nm.rotateProxy()
			} else if resp.StatusCode() == http.StatusNotFound {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}

		body = resp.Body()
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = nm.RetryInterval
	policy.MaxElapsedTime = 0
	retries := nm.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	if err := backoff.Retry(operation, bounded); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, helpers.NewTransportError(statusErr, "GET %s", url)
		}
		return nil, helpers.NewTransportError(err, "GET %s failed after %d attempts", url, attempt)
	}
	return body, nil
}
