// Package reviews proxies Google Places review data with a cache and a static
// fallback.
package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dallylee/pt-authority-hub-landing/internal/cache"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
)

// Response statuses.
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusError    = "error"
)

// DefaultEndpoint is the Places details API.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api/place/details/json"

// Data is the review summary shown on the landing page.
type Data struct {
	Rating           float64           `json:"rating"`
	UserRatingsTotal int               `json:"user_ratings_total"`
	Reviews          []json.RawMessage `json:"reviews"`
}

// Response is returned to the browser as-is.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    Data   `json:"data"`
}

// Fallback is served when Places is unconfigured or failing.
func Fallback() Data {
	return Data{Rating: 4.9, UserRatingsTotal: 214, Reviews: []json.RawMessage{}}
}

// Config holds the Places credentials and cache settings.
type Config struct {
	APIKey   string
	PlaceID  string
	Endpoint string
	CacheTTL time.Duration
}

// Service serves review data cache-aside.
type Service struct {
	cfg    Config
	cache  cache.Store
	client *http.Client
	log    logger.Logger
}

// NewService constructs a Service. A nil store disables caching.
func NewService(cfg Config, store cache.Store, client *http.Client, log logger.Logger) *Service {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Hour
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{cfg: cfg, cache: store, client: client, log: log.With("component", "reviews")}
}

// Get returns cached review data, fetching from Places on a miss.
func (s *Service) Get(ctx context.Context) Response {
	if s.cfg.APIKey == "" || s.cfg.PlaceID == "" {
		return Response{Status: StatusFallback, Message: "Service currently unavailable", Data: Fallback()}
	}

	key := "reviews:" + s.cfg.PlaceID
	if resp, ok := s.cached(ctx, key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return resp
	}
	cacheLookups.WithLabelValues("miss").Inc()

	data, err := s.fetch(ctx)
	if err != nil {
		s.log.WithError(err).Error("fetch google reviews failed", nil)
		return Response{Status: StatusError, Message: publicMessage(err), Data: Fallback()}
	}

	resp := Response{Status: StatusOK, Data: data}
	if s.cache != nil {
		if body, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, key, string(body), s.cfg.CacheTTL); err != nil {
				s.log.WithError(err).Warn("cache reviews failed", nil)
			}
		}
	}
	return resp
}

func (s *Service) cached(ctx context.Context, key string) (Response, bool) {
	if s.cache == nil {
		return Response{}, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.WithError(err).Warn("read reviews cache failed", nil)
		}
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Response{}, false
	}
	return resp, true
}

// placesError is a non-OK status reported by the Places API itself.
type placesError struct {
	status  string
	message string
}

func (e *placesError) Error() string {
	return fmt.Sprintf("google places returned %s: %s", e.status, e.message)
}

// publicMessage is the error text safe to show visitors. Transport and decode
// errors can carry the request URL, which holds the API key.
func publicMessage(err error) string {
	var pe *placesError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return "Service currently unavailable"
}

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		Rating           float64           `json:"rating"`
		UserRatingsTotal int               `json:"user_ratings_total"`
		Reviews          []json.RawMessage `json:"reviews"`
	} `json:"result"`
}

func (s *Service) fetch(ctx context.Context) (Data, error) {
	q := url.Values{}
	q.Set("place_id", s.cfg.PlaceID)
	q.Set("fields", "reviews,rating,user_ratings_total")
	q.Set("key", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Data{}, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = s.cfg.Endpoint
		}
		return Data{}, err
	}
	defer res.Body.Close()

	var body placesResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Data{}, fmt.Errorf("decode places response: %w", err)
	}
	if body.Status != "OK" {
		msg := body.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return Data{}, &placesError{status: body.Status, message: msg}
	}

	reviews := body.Result.Reviews
	if reviews == nil {
		reviews = []json.RawMessage{}
	}
	return Data{
		Rating:           body.Result.Rating,
		UserRatingsTotal: body.Result.UserRatingsTotal,
		Reviews:          reviews,
	}, nil
}
