package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// DefaultWebPagePath is the LOGO! page showing the plant's message text and
// power bar.
const DefaultWebPagePath = "/logo_bm_01.shtm"

// The power bar is 358px wide at the plant's 30 kW rating.
const (
	barFullWidthPx = 358
	barFullScaleKW = 30
)

// statusWords must all appear in the message screen for the plant to be on
// the grid.
var statusWords = []string{"Status", "Ein", "Anlage", "ist", "am", "Netz!"}

var widthPattern = regexp.MustCompile(`(?:^|;)\s*width\s*:\s*([0-9]+(?:\.[0-9]+)?)px`)

var errLoginRequired = errors.New("login required")

// WebConfig describes how to reach the LOGO! built-in web server.
type WebConfig struct {
	LoginURL string
	Password string
	PagePath string // default DefaultWebPagePath
	Timeout  time.Duration

	HealthyPowerKW float64

	// Now stamps samples; nil means time.Now.
	Now func() time.Time
}

// WebProber samples the plant by reading the LOGO! web UI.
// The session cookie is kept between samples; an expired session triggers
// one fresh login.
type WebProber struct {
	cfg      WebConfig
	loginURL string
	pageURL  string
	client   *http.Client
	now      func() time.Time
	loggedIn bool
}

// NewWebProber creates a prober. No request is made until the first Sample.
func NewWebProber(cfg WebConfig) (*WebProber, error) {
	if cfg.LoginURL == "" {
		return nil, errors.New("probe web: login url required")
	}
	if cfg.Password == "" {
		return nil, errors.New("probe web: password required")
	}
	base, err := url.Parse(cfg.LoginURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("probe web: invalid login url %q", cfg.LoginURL)
	}
	if cfg.PagePath == "" {
		cfg.PagePath = DefaultWebPagePath
	}
	page, err := base.Parse(cfg.PagePath)
	if err != nil {
		return nil, fmt.Errorf("probe web: invalid page path %q: %w", cfg.PagePath, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("probe web: cookie jar: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &WebProber{
		cfg:      cfg,
		loginURL: base.String(),
		pageURL:  page.String(),
		client:   &http.Client{Jar: jar, Timeout: cfg.Timeout},
		now:      now,
	}, nil
}

// Sample logs in if needed and reads power and status from the page.
// An unreadable power bar yields power -1; a missing or incomplete message
// screen yields FAULT. Transport and login failures are returned as errors.
func (p *WebProber) Sample(ctx context.Context) (logic.Sample, error) {
	if err := ctx.Err(); err != nil {
		return logic.Sample{}, err
	}

	if !p.loggedIn {
		if err := p.login(ctx); err != nil {
			return logic.Sample{}, fmt.Errorf("probe web: %w", err)
		}
	}

	doc, err := p.fetchPage(ctx)
	if errors.Is(err, errLoginRequired) {
		p.loggedIn = false
		if err := p.login(ctx); err != nil {
			return logic.Sample{}, fmt.Errorf("probe web: %w", err)
		}
		doc, err = p.fetchPage(ctx)
	}
	if err != nil {
		return logic.Sample{}, fmt.Errorf("probe web: %w", err)
	}

	return newSample(p.now(), parseStatus(doc), parsePower(doc), p.cfg.HealthyPowerKW), nil
}

// Close drops idle connections. The LOGO! session simply expires.
func (p *WebProber) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *WebProber) login(ctx context.Context) error {
	form := url.Values{"password": {p.cfg.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	doc, err := p.do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if isLoginPage(doc) {
		return errors.New("login rejected")
	}
	p.loggedIn = true
	return nil
}

func (p *WebProber) fetchPage(ctx context.Context) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("page request: %w", err)
	}
	doc, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", p.cfg.PagePath, err)
	}
	if isLoginPage(doc) {
		return nil, errLoginRequired
	}
	return doc, nil
}

func (p *WebProber) do(req *http.Request) (*html.Node, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, errLoginRequired
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func isLoginPage(doc *html.Node) bool {
	return findNode(doc, func(n *html.Node) bool { return attr(n, "id") == "input_password" }) != nil
}

// parseStatus reports OK only if every status word occurs in the message
// screen's markup.
func parseStatus(doc *html.Node) logic.StatusLabel {
	screen := findNode(doc, func(n *html.Node) bool { return attr(n, "id") == "show_screen" })
	if screen == nil {
		return logic.StatusFault
	}
	content := innerHTML(screen)
	for _, w := range statusWords {
		if !strings.Contains(content, w) {
			return logic.StatusFault
		}
	}
	return logic.StatusOK
}

// parsePower converts the power bar's width to kW, or -1 if unreadable.
func parsePower(doc *html.Node) float64 {
	bar := findNode(doc, func(n *html.Node) bool { return hasClass(n, "msg_bar_fill") })
	if bar == nil {
		return -1
	}
	m := widthPattern.FindStringSubmatch(attr(bar, "style"))
	if m == nil {
		return -1
	}
	px, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return -1
	}
	return pixelsToKW(math.Trunc(px))
}

func pixelsToKW(px float64) float64 {
	return roundKW(px * barFullScaleKW / barFullWidthPx)
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}
