package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

var errNoProfile = errors.New("no profile configured")

// StaticProfiles is a fixed name table. A missing entry is not an unknown
// user: the gateway falls back to a generated name.
type StaticProfiles map[domain.UserID]domain.Profile

func (s StaticProfiles) UserProfile(_ context.Context, id domain.UserID) (domain.Profile, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return domain.Profile{}, errNoProfile
}

// ParseStaticProfiles converts the config table (user id -> name).
func ParseStaticProfiles(raw map[string]string) (StaticProfiles, error) {
	out := make(StaticProfiles, len(raw))
	for k, name := range raw {
		id, err := domain.ParseUserID(k)
		if err != nil {
			return nil, fmt.Errorf("identity.profiles key %q: %w", k, err)
		}
		out[id] = domain.Profile{Name: name}
	}
	return out, nil
}

// HTTPProfileClient asks the identity service for GET {base}/users/{id}.
// Calls go through a circuit breaker so a failing service degrades to
// fallback names instead of stalling every connection.
type HTTPProfileClient struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[domain.Profile]
}

func NewHTTPProfileClient(baseURL string, timeout time.Duration) *HTTPProfileClient {
	name := "identity-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[domain.Profile](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("module", "adapters.auth").Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &HTTPProfileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

func (c *HTTPProfileClient) UserProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	p, err := c.cb.Execute(func() (domain.Profile, error) {
		return c.fetch(ctx, id)
	})
	switch {
	case err == nil:
		metrics.IdentityRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrNotFound):
		metrics.IdentityRequests.WithLabelValues("not_found").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.IdentityRequests.WithLabelValues("rejected").Inc()
	default:
		metrics.IdentityRequests.WithLabelValues("failure").Inc()
	}
	return p, err
}

func (c *HTTPProfileClient) fetch(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	url := fmt.Sprintf("%s/users/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Profile{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	default:
		return domain.Profile{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}
	var p domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
