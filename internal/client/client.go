// Package client calls the agenda HTTP API from other Go services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"agenda/internal/models"

	"github.com/redis/go-redis/v9"
)

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// AgendaClient is a small HTTP client of /api/v1.
type AgendaClient struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	token      string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewAgendaClient constructs a client with baseURL, API key and extra header.
func NewAgendaClient(baseURL, apiKey, apiExtra string) *AgendaClient {
	return &AgendaClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching of availability answers.
func (c *AgendaClient) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// SignIn stores the session token for later calls.
func (c *AgendaClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var resp struct {
		Token     string    `json:"token"`
		UserID    int64     `json:"user_id"`
		Role      string    `json:"role"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/signin", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &models.Session{Token: resp.Token, UserID: resp.UserID, Role: resp.Role, ExpiresAt: resp.ExpiresAt}, nil
}

func (c *AgendaClient) SignOut(ctx context.Context) error {
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/signout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// Availability returns the bookable slots of date (YYYY-MM-DD).
func (c *AgendaClient) Availability(ctx context.Context, date string) ([]string, error) {
	cacheKey := availabilityKey(date)
	var resp struct {
		Slots []string `json:"slots"`
	}
	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Slots, nil
	}

	if err := c.send(ctx, http.MethodGet, "/api/v1/availability?date="+url.QueryEscape(date), nil, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Slots, nil
}

func (c *AgendaClient) CreateBooking(ctx context.Context, date, slot string) (*models.Booking, error) {
	var booking models.Booking
	body := map[string]string{"date": date, "time": slot}
	if err := c.send(ctx, http.MethodPost, "/api/v1/bookings", body, &booking); err != nil {
		return nil, err
	}
	c.dropCache(ctx, availabilityKey(date))
	return &booking, nil
}

func (c *AgendaClient) CancelBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var booking models.Booking
	if err := c.send(ctx, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", bookingID), nil, &booking); err != nil {
		return nil, err
	}
	c.dropCache(ctx, availabilityKey(booking.Date.Format(models.DateLayout)))
	return &booking, nil
}

func (c *AgendaClient) History(ctx context.Context) (*models.HistorySections, error) {
	var sections models.HistorySections
	if err := c.send(ctx, http.MethodGet, "/api/v1/history", nil, &sections); err != nil {
		return nil, err
	}
	return &sections, nil
}

func availabilityKey(date string) string {
	return "agenda:availability:" + date
}

func (c *AgendaClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *AgendaClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *AgendaClient) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *AgendaClient) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *AgendaClient) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
