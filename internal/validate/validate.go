package validate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	probeTimeout = 5 * time.Second
	maxRedirects = 5
)

// suspiciousPatterns flag URLs that commonly front phishing or malware
// distribution. A match marks the URL suspicious, it does not block it.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.(exe|scr|bat|cmd|msi)$`),
	regexp.MustCompile(`(?i)(login|signin|verify|account).*\.(tk|ml|ga|cf|gq)(/|$)`),
	regexp.MustCompile(`^https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
	regexp.MustCompile(`(?i)@`),
}

// Result is the verdict for one checked URL.
type Result struct {
	URL        string `json:"url"`
	Valid      bool   `json:"valid"`
	Reachable  bool   `json:"reachable"`
	Suspicious bool   `json:"suspicious"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Checker validates original URLs: format, a domain blacklist, suspicious
// pattern heuristics and an optional liveness probe.
type Checker struct {
	client      *http.Client
	blacklisted map[string]struct{}
}

func NewChecker(blacklist []string) *Checker {
	blacklisted := make(map[string]struct{}, len(blacklist))
	for _, domain := range blacklist {
		blacklisted[strings.ToLower(domain)] = struct{}{}
	}

	return &Checker{
		client: &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		blacklisted: blacklisted,
	}
}

// Check validates a single URL. The probe is skipped once the URL fails
// static checks.
func (c *Checker) Check(ctx context.Context, rawURL string) Result {
	result := Result{URL: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.Reason = "malformed url or unsupported scheme"
		return result
	}

	host := strings.ToLower(u.Hostname())
	if c.isBlacklisted(host) {
		result.Reason = "blacklisted domain"
		return result
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(rawURL) {
			result.Suspicious = true
			break
		}
	}

	result.Valid = true
	result.StatusCode, result.Reachable = c.probe(ctx, rawURL)
	if !result.Reachable && result.Reason == "" {
		result.Reason = "target did not respond"
	}

	return result
}

// CheckAll validates a batch of URLs sequentially. The caller's context
// bounds the whole batch.
func (c *Checker) CheckAll(ctx context.Context, rawURLs []string) []Result {
	results := make([]Result, 0, len(rawURLs))
	for _, rawURL := range rawURLs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, c.Check(ctx, rawURL))
	}

	return results
}

func (c *Checker) isBlacklisted(host string) bool {
	if _, ok := c.blacklisted[host]; ok {
		return true
	}

	// Subdomains of a blacklisted domain are blacklisted too.
	for domain := range c.blacklisted {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}

	return false
}

// probe checks liveness with a HEAD request, falling back to GET for targets
// that reject HEAD.
func (c *Checker) probe(ctx context.Context, rawURL string) (int, bool) {
	status, ok := c.request(ctx, http.MethodHead, rawURL)
	if ok && status != http.StatusMethodNotAllowed {
		return status, status < http.StatusInternalServerError
	}

	status, ok = c.request(ctx, http.MethodGet, rawURL)
	if !ok {
		return 0, false
	}

	return status, status < http.StatusInternalServerError
}

func (c *Checker) request(ctx context.Context, method, rawURL string) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	return resp.StatusCode, true
}
