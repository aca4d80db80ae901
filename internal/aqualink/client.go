package aqualink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/anujtewari17/iaqualink-spa-control/config"
)

// apiKey is the fixed mobile-app key the vendor expects on every request;
// it is not account specific.
const apiKey = "EOOEMOW4YR6QNB07"

const deviceListCacheKey = "devices.json"

// Client talks to the iAquaLink cloud API. It owns the vendor session
// (token, user id, session id, selected device) and re-authenticates when
// the session is absent or older than the configured timeout.
type Client struct {
	cfg     *config.AqualinkConfig
	client  *http.Client
	devices *cache.Cache

	mu        sync.Mutex
	authToken string
	userID    string
	sessionID string
	serial    string
	lastLogin time.Time
}

// NewClient creates a vendor client. No network calls happen until the
// first operation needs a session.
func NewClient(cfg *config.AqualinkConfig) *Client {
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		devices: cache.New(6*time.Hour, time.Hour),
	}
}

type loginResponse struct {
	AuthenticationToken string      `json:"authentication_token"`
	ID                  json.Number `json:"id"`
	SessionID           string      `json:"session_id"`
}

type deviceEntry struct {
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
}

// session is the immutable view of vendor credentials a single request uses.
type session struct {
	sessionID string
	serial    string
}

// Status fetches the home screen, enriches it with the per-circuit listing
// when available, and returns the normalized snapshot. Any failure on the
// primary fetch surfaces as ErrStatusUnavailable; the snapshot is never
// partially populated.
func (c *Client) Status(ctx context.Context) (*Snapshot, error) {
	home, err := c.command(ctx, "get_home", nil)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}

	// The per-circuit screen is an enrichment; without it the home-screen
	// derived jet-pump state stands.
	circuits, err := c.command(ctx, "get_devices", nil)
	if err != nil {
		log.Printf("per-circuit status unavailable, using home screen only: %v", err)
		circuits = nil
	}

	return Normalize(home, circuits, c.cfg.JetPumpDevice, time.Now().UTC()), nil
}

// Toggle flips the named canonical device with a single vendor round trip.
// It does not read state back; callers poll Status afterward, allowing for
// the vendor's propagation delay.
func (c *Client) Toggle(ctx context.Context, device string) (map[string]any, error) {
	cmd, err := c.vendorCommand(device)
	if err != nil {
		return nil, err
	}
	return c.command(ctx, cmd, nil)
}

// SetSpaTemperature sets the spa set point. Range validation happens at the
// HTTP layer before any vendor call.
func (c *Client) SetSpaTemperature(ctx context.Context, temp int) (map[string]any, error) {
	params := url.Values{}
	params.Set("temp2", fmt.Sprintf("%d", temp))
	return c.command(ctx, "set_spa_set_point", params)
}

// vendorCommand maps a canonical device name to the vendor command
// identifier. The jet-pump circuit varies by installation and comes from
// configuration.
func (c *Client) vendorCommand(device string) (string, error) {
	switch device {
	case DeviceSpaMode:
		return "set_spa_pump", nil
	case DeviceSpaHeater:
		return "set_spa_heater", nil
	case DeviceFilterPump:
		return "set_pool_pump", nil
	case DeviceJetPump:
		return "set_" + c.cfg.JetPumpDevice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDevice, device)
}

// command issues one vendor session command. An expired session gets one
// re-login and one retry; nothing beyond that.
func (c *Client) command(ctx context.Context, cmd string, extra url.Values) (map[string]any, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	payload, status, err := c.doCommand(ctx, sess, cmd, extra)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		sess, err = c.reauthenticate(ctx)
		if err != nil {
			return nil, err
		}
		payload, status, err = c.doCommand(ctx, sess, cmd, extra)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vendor command %q returned status %d", cmd, status)
	}

	var result map[string]any
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vendor response for %q: %w", cmd, err)
	}
	return result, nil
}

func (c *Client) doCommand(ctx context.Context, sess session, cmd string, extra url.Values) ([]byte, int, error) {
	params := url.Values{}
	params.Set("actionID", "command")
	params.Set("command", cmd)
	params.Set("serial", sess.serial)
	params.Set("sessionID", sess.sessionID)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SessionURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create vendor request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read vendor response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ensureSession returns a usable vendor session, logging in first when none
// exists or the last login is older than the configured timeout.
func (c *Client) ensureSession(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authToken == "" || c.sessionID == "" || time.Since(c.lastLogin) > c.cfg.SessionTimeout {
		if err := c.loginLocked(ctx); err != nil {
			return session{}, err
		}
	}
	return session{sessionID: c.sessionID, serial: c.serial}, nil
}

// reauthenticate forces a fresh login, used once when the vendor rejects a
// session mid-flight.
func (c *Client) reauthenticate(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loginLocked(ctx); err != nil {
		return session{}, err
	}
	return session{sessionID: c.sessionID, serial: c.serial}, nil
}

func (c *Client) loginLocked(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"api_key":  apiKey,
		"email":    c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/users/v1/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("%w: malformed login response: %v", ErrAuthFailed, err)
	}
	if lr.AuthenticationToken == "" || lr.SessionID == "" {
		return fmt.Errorf("%w: login response missing tokens", ErrAuthFailed)
	}

	c.authToken = lr.AuthenticationToken
	c.userID = lr.ID.String()
	c.sessionID = lr.SessionID
	c.lastLogin = time.Now()

	serial, err := c.selectDevice(ctx)
	if err != nil {
		return err
	}
	c.serial = serial

	log.Printf("Logged in to iAquaLink, using device %s", c.serial)
	return nil
}

// selectDevice resolves the controller serial: the configured one when set,
// otherwise the first device on the account. The device list changes rarely
// and is cached across re-logins.
func (c *Client) selectDevice(ctx context.Context) (string, error) {
	var devices []deviceEntry
	if cached, found := c.devices.Get(deviceListCacheKey); found {
		devices = cached.([]deviceEntry)
	} else {
		fetched, err := c.fetchDevices(ctx)
		if err != nil {
			return "", err
		}
		devices = fetched
		c.devices.Set(deviceListCacheKey, devices, cache.DefaultExpiration)
	}

	if len(devices) == 0 {
		return "", fmt.Errorf("%w: no devices found in account", ErrAuthFailed)
	}

	if c.cfg.DeviceSerial != "" {
		for _, d := range devices {
			if d.SerialNumber == c.cfg.DeviceSerial {
				return d.SerialNumber, nil
			}
		}
		return "", fmt.Errorf("%w: device with serial %q not found", ErrAuthFailed, c.cfg.DeviceSerial)
	}
	return devices[0].SerialNumber, nil
}

func (c *Client) fetchDevices(ctx context.Context) ([]deviceEntry, error) {
	params := url.Values{}
	params.Set("api_key", apiKey)
	params.Set("authentication_token", c.authToken)
	params.Set("user_id", c.userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DevicesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create devices request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: devices request failed: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: devices request returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	var devices []deviceEntry
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("%w: malformed devices response: %v", ErrAuthFailed, err)
	}
	return devices, nil
}
