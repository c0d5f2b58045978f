package helpers

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"

	"market-sentinel/src/logger"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// -----------------------------------------------------------------------------

// ProxyManager rotates through a static proxy list and picks user agents.
type ProxyManager struct {
	proxies    []string
	userAgents []string
	index      int
	mu         sync.Mutex
	logger     *logger.Logger
}

// -----------------------------------------------------------------------------

// NewProxyManager keeps the valid entries of proxies. A non-empty userAgent
// pins the User-Agent header instead of rotating.
func NewProxyManager(proxies []string, userAgent string) *ProxyManager {
	var valid []string
	for _, p := range proxies {
		if ValidateProxy(p) {
			valid = append(valid, FormatProxy(p))
		}
	}

	agents := defaultUserAgents
	if userAgent != "" {
		agents = []string{userAgent}
	}

	return &ProxyManager{
		proxies:    valid,
		userAgents: agents,
		logger:     logger.NewLogger("ProxyManager"),
	}
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetCurrentProxy() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return ""
	}
	return pm.proxies[pm.index]
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) RotateProxy() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) <= 1 {
		return
	}

	pm.index = (pm.index + 1) % len(pm.proxies)
	pm.logger.Info("Rotating proxy to: %s", pm.proxies[pm.index])
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetUserAgent() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.userAgents[rand.Intn(len(pm.userAgents))]
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) HasProxies() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies) > 0
}

// -----------------------------------------------------------------------------

// ValidateProxy checks if a proxy string is roughly valid.
func ValidateProxy(proxyStr string) bool {
	if strings.TrimSpace(proxyStr) == "" {
		return false
	}
	u, err := url.Parse(FormatProxy(proxyStr))
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "socks5")
}

// -----------------------------------------------------------------------------

// FormatProxy ensures the proxy has a scheme.
func FormatProxy(proxyStr string) string {
	if !strings.Contains(proxyStr, "://") {
		return "http://" + proxyStr
	}
	return proxyStr
}
