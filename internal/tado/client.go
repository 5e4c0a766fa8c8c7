// Package tado talks to the tado v2 HTTP API: zone list, active timetable and schedule blocks.
package tado

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/config"
	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"
)

// ErrNotAuthenticated means no usable refresh token is available.
var ErrNotAuthenticated = errors.New("tado: not authenticated")

// Activation states reported by ActivationStatus.
const (
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
)

// TokenStore persists the rotating refresh token.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

type Client struct {
	http   *http.Client
	apiURL string
	oauth  *oauth2.Config
	tokens TokenStore
	seed   string

	mu     sync.Mutex
	homeID int
	source oauth2.TokenSource
}

func New(cfg config.Tado, tokens TokenStore) *Client {
	return &Client{
		http:   &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		tokens: tokens,
		seed:   cfg.RefreshToken,
		homeID: cfg.HomeID,
	}
}

// ActivationStatus reports whether the client holds a refresh token the backend accepts.
func (c *Client) ActivationStatus(ctx context.Context) (string, error) {
	if _, err := c.token(); err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return StatusPending, nil
		}
		return "", err
	}
	return StatusCompleted, nil
}

type zoneResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (c *Client) GetZones(ctx context.Context) ([]model.Zone, error) {
	home, err := c.home(ctx)
	if err != nil {
		return nil, err
	}

	var resp []zoneResponse
	if err := c.get(ctx, fmt.Sprintf("/homes/%d/zones", home), &resp); err != nil {
		return nil, fmt.Errorf("get zones: %w", err)
	}

	zones := make([]model.Zone, 0, len(resp))
	for _, z := range resp {
		zones = append(zones, model.Zone{ID: z.ID, Name: z.Name, Type: z.Type})
	}
	return zones, nil
}

type timetableResponse struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func (c *Client) GetTimetableID(ctx context.Context, zoneID int) (int, error) {
	home, err := c.home(ctx)
	if err != nil {
		return 0, err
	}

	var resp timetableResponse
	if err := c.get(ctx, fmt.Sprintf("/homes/%d/zones/%d/schedule/activeTimetable", home, zoneID), &resp); err != nil {
		return 0, fmt.Errorf("get active timetable for zone %d: %w", zoneID, err)
	}
	return resp.ID, nil
}

type blockResponse struct {
	DayType string `json:"dayType"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Setting struct {
		Type        string `json:"type"`
		Power       string `json:"power"`
		Temperature *struct {
			Celsius float64 `json:"celsius"`
		} `json:"temperature"`
	} `json:"setting"`
}

func (c *Client) GetSchedule(ctx context.Context, zoneID, timetableID int) (model.Schedule, error) {
	home, err := c.home(ctx)
	if err != nil {
		return nil, err
	}

	var resp []blockResponse
	if err := c.get(ctx, fmt.Sprintf("/homes/%d/zones/%d/schedule/timetables/%d/blocks", home, zoneID, timetableID), &resp); err != nil {
		return nil, fmt.Errorf("get schedule for zone %d: %w", zoneID, err)
	}
	return toSchedule(resp)
}

func toSchedule(blocks []blockResponse) (model.Schedule, error) {
	schedule := make(model.Schedule, 0, len(blocks))
	for i, b := range blocks {
		start, err := model.ParseTimeOfDay(b.Start)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		end, err := model.ParseTimeOfDay(b.End)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		// tado closes the last block of a day with "00:00".
		if end == 0 && start > 0 {
			end = model.EndOfDay
		}

		block := model.SettingBlock{Start: start, End: end, DayType: b.DayType}
		if b.Setting.Temperature != nil {
			block.Setpoint = model.Celsius(b.Setting.Temperature.Celsius)
		}
		schedule = append(schedule, block)
	}
	return schedule, schedule.Validate()
}

type meResponse struct {
	Homes []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"homes"`
}

func (c *Client) home(ctx context.Context) (int, error) {
	c.mu.Lock()
	id := c.homeID
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	var me meResponse
	if err := c.get(ctx, "/me", &me); err != nil {
		return 0, fmt.Errorf("get home: %w", err)
	}
	if len(me.Homes) == 0 {
		return 0, errors.New("tado account has no homes")
	}

	c.mu.Lock()
	c.homeID = me.Homes[0].ID
	c.mu.Unlock()
	log.Info().Int("home_id", me.Homes[0].ID).Str("home", me.Homes[0].Name).Msg("Using tado home")
	return me.Homes[0].ID, nil
}

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tado returned %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	err := c.doGet(ctx, path, out)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		err = c.doGet(ctx, path, out)
	}
	return err
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	log.Debug().Str("path", path).RawJSON("body", body).Msg("tado response")
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.source = nil
	c.mu.Unlock()
}

// token returns a valid access token. The token source is rebuilt from the stored refresh
// token after invalidate or a rejected refresh; the configured seed is tried when the stored
// token is rejected.
func (c *Client) token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		tok, err := c.source.Token()
		if err != nil {
			err = authError(err)
			if errors.Is(err, ErrNotAuthenticated) {
				c.source = nil
			}
			return nil, err
		}
		return tok, nil
	}

	stored, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, 2)
	for _, rt := range []string{stored, c.seed} {
		if rt != "" && (len(candidates) == 0 || candidates[0] != rt) {
			candidates = append(candidates, rt)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotAuthenticated
	}

	var lastErr error
	for _, rt := range candidates {
		src := oauth2.ReuseTokenSource(nil, &persistingSource{
			base:   c.oauth.TokenSource(c.oauthContext(), &oauth2.Token{RefreshToken: rt}),
			tokens: c.tokens,
			saved:  stored,
		})
		tok, err := src.Token()
		if err == nil {
			c.source = src
			log.Debug().Time("expires_at", tok.Expiry).Msg("tado access token refreshed")
			return tok, nil
		}
		lastErr = authError(err)
		if !errors.Is(lastErr, ErrNotAuthenticated) {
			return nil, lastErr
		}
		log.Warn().Err(lastErr).Bool("stored", rt == stored).Msg("tado refresh token rejected")
	}
	return nil, lastErr
}

func (c *Client) oauthContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
}

// authError maps a rejected refresh grant to ErrNotAuthenticated.
func authError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		switch rErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fmt.Errorf("%w: refresh token rejected (%d)", ErrNotAuthenticated, rErr.Response.StatusCode)
		}
	}
	return fmt.Errorf("refresh token: %w", err)
}

// persistingSource saves every rotated refresh token to the token store.
type persistingSource struct {
	base   oauth2.TokenSource
	tokens TokenStore
	saved  string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" && tok.RefreshToken != p.saved {
		if err := p.tokens.Save(tok.RefreshToken); err != nil {
			log.Error().Err(err).Msg("Failed to persist rotated refresh token")
		} else {
			p.saved = tok.RefreshToken
		}
	}
	return tok, nil
}
