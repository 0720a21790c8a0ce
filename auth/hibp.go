package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHIBPRangeURL = "https://api.pwnedpasswords.com/range/"
	hibpUserAgent       = "credvault/0.1"
	hibpTimeout         = 4 * time.Second
)

// HIBPResult reports whether a password's hash suffix appears in the HIBP
// breach corpus and how often.
type HIBPResult struct {
	Found bool
	Count int
}

// HIBPChecker queries the Have I Been Pwned range API. Construct one per host
// process; the zero-option constructor uses a short-timeout client suited to
// interactive flows.
type HIBPChecker struct {
	client   *http.Client
	rangeURL string
}

// HIBPOption adjusts a checker at construction.
type HIBPOption func(*HIBPChecker)

// WithHIBPClient substitutes the HTTP client, e.g. to change the timeout.
func WithHIBPClient(c *http.Client) HIBPOption {
	return func(h *HIBPChecker) { h.client = c }
}

// WithHIBPRangeURL points the checker at an alternate range endpoint.
func WithHIBPRangeURL(u string) HIBPOption {
	return func(h *HIBPChecker) { h.rangeURL = u }
}

// NewHIBPChecker returns a checker ready for use.
func NewHIBPChecker(opts ...HIBPOption) *HIBPChecker {
	h := &HIBPChecker{
		client:   &http.Client{Timeout: hibpTimeout},
		rangeURL: defaultHIBPRangeURL,
	}
	for _, fn := range opts {
		fn(h)
	}
	return h
}

// Check queries the range API using k-anonymity: only the first five hex
// characters of SHA1(pw) leave the process, never the password itself. Errors
// are returned to the caller, who decides whether to fail open.
func (h *HIBPChecker) Check(ctx context.Context, pw string) (HIBPResult, error) {
	sum := sha1.Sum([]byte(pw))
	hashHex := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := hashHex[:5], hashHex[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.rangeURL+prefix, nil)
	if err != nil {
		return HIBPResult{}, fmt.Errorf("build breach query: %w", err)
	}
	req.Header.Set("User-Agent", hibpUserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return HIBPResult{}, fmt.Errorf("query breach corpus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HIBPResult{}, fmt.Errorf("query breach corpus: unexpected status %s", resp.Status)
	}

	count, found, err := scanRange(resp.Body, suffix)
	if err != nil {
		return HIBPResult{}, err
	}
	return HIBPResult{Found: found, Count: count}, nil
}

// scanRange walks the SUFFIX:COUNT lines of a range response looking for a
// single hash suffix.
func scanRange(r io.Reader, suffix string) (count int, found bool, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		sep := strings.IndexByte(line, ':')
		if sep == -1 || !strings.EqualFold(line[:sep], suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[sep+1:]))
		if err != nil {
			return 0, false, fmt.Errorf("parse breach count: %w", err)
		}
		return n, true, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, false, fmt.Errorf("read breach response: %w", err)
	}
	return 0, false, nil
}

var defaultHIBP = NewHIBPChecker()

// CheckHIBP runs a breach check with the package default checker.
func CheckHIBP(ctx context.Context, pw string) (HIBPResult, error) {
	return defaultHIBP.Check(ctx, pw)
}
