// Package codewars is a small client for the public Codewars v1 API.
package codewars

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/codewars-bot/internal/domain"
)

// DefaultBaseURL is the public API root
const DefaultBaseURL = "https://www.codewars.com/api/v1/"

// StatusError is returned for non-2xx responses
type StatusError struct {
	Username string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("codewars returned %d for %q", e.Code, e.Username)
}

// Unwrap maps 404 to domain.ErrUserNotFound
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return domain.ErrUserNotFound
	}
	return nil
}

type userResponse struct {
	Username            string `json:"username"`
	Name                string `json:"name"`
	Honor               int64  `json:"honor"`
	Clan                string `json:"clan"`
	LeaderboardPosition *int64 `json:"leaderboardPosition"`
	Ranks               struct {
		Overall struct {
			Rank  int    `json:"rank"`
			Name  string `json:"name"`
			Score int64  `json:"score"`
		} `json:"overall"`
	} `json:"ranks"`
	CodeChallenges struct {
		TotalAuthored  int64 `json:"totalAuthored"`
		TotalCompleted int64 `json:"totalCompleted"`
	} `json:"codeChallenges"`
}

// Config tunes the client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// Client fetches user profiles. Outbound calls are throttled by a token
// bucket shared by all callers.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewClient validates cfg and builds a client
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing codewars base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		if burst <= 0 {
			burst = int(cfg.RatePerSec) + 1
		}
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("comp", "codewars").Logger(),
		now:     time.Now,
	}, nil
}

// Profile fetches the current profile of username
func (c *Client) Profile(ctx context.Context, username string) (domain.Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Profile{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	endpoint := c.userURL(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetching %q: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Profile{}, &StatusError{Username: username, Code: resp.StatusCode}
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Profile{}, fmt.Errorf("decoding profile of %q: %w", username, err)
	}

	c.logger.Debug().
		Str("user", username).
		Dur("took", c.now().Sub(start)).
		Msg("profile fetched")

	return toProfile(username, body, c.now()), nil
}

// userURL appends users/<username> to the base with the username kept as a
// single literal segment. Dot segments are percent-encoded so nothing
// along the way resolves them.
func (c *Client) userURL(username string) *url.URL {
	seg := url.PathEscape(username)
	if username == "." || username == ".." {
		seg = strings.Repeat("%2E", len(username))
	}
	u := *c.base
	u.Path = c.base.Path + "users/" + username
	u.RawPath = c.base.EscapedPath() + "users/" + seg
	return &u
}

func toProfile(requested string, body userResponse, at time.Time) domain.Profile {
	p := domain.Profile{
		Username:  body.Username,
		Name:      body.Name,
		Clan:      body.Clan,
		Honor:     body.Honor,
		Score:     body.Ranks.Overall.Score,
		Completed: body.CodeChallenges.TotalCompleted,
		Rank: domain.Rank{
			Value: body.Ranks.Overall.Rank,
			Name:  body.Ranks.Overall.Name,
		},
		FetchedAt: at,
	}
	if p.Username == "" {
		p.Username = requested
	}
	if body.LeaderboardPosition != nil {
		p.LeaderboardPosition = *body.LeaderboardPosition
	}
	return p
}
