// Package geocoder resolves free-text addresses to coordinates using the
// public Photon and OpenStreetMap Nominatim services.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/utils"
)

var (
	ErrEmptyAddress    = errors.New("address is empty")
	ErrAddressNotFound = errors.New("no coordinates found for address")
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	PhotonURL     string
	NominatimURL  string
	Country       string
	CountryCode   string
	UserAgent     string
	Timeout       time.Duration
	FallbackDelay time.Duration
}

// OptionsFromConfig maps application config onto geocoder options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PhotonURL:     cfg.PhotonURL,
		NominatimURL:  cfg.NominatimURL,
		Country:       cfg.GeocoderCountry,
		CountryCode:   cfg.GeocoderCountryCode,
		UserAgent:     cfg.GeocoderAgent,
		Timeout:       cfg.GeocoderTimeout,
		FallbackDelay: cfg.GeocoderFallback,
	}
}

// Client tries Photon first and falls back to Nominatim.
// It is safe for concurrent use.
type Client struct {
	session *http.Client
	opts    Options
	logger  *zap.Logger
}

// New creates a geocoding client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "BloodAlertEngine/1.0"
	}
	return &Client{
		session: &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  utils.GetLogger(),
	}
}

// Geocode resolves an address. It returns ErrAddressNotFound when neither
// provider has a usable result.
func (c *Client) Geocode(ctx context.Context, address string) (models.Coordinate, error) {
	query := c.query(address)
	if query == "" {
		return models.Coordinate{}, ErrEmptyAddress
	}

	coord, err := c.photon(ctx, query)
	if err == nil {
		c.logger.Debug("Geocoded address", zap.String("provider", "photon"), zap.String("address", address))
		return coord, nil
	}
	c.logger.Warn("Photon geocoding failed", zap.String("address", address), zap.Error(err))

	if c.opts.FallbackDelay > 0 {
		timer := time.NewTimer(c.opts.FallbackDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Coordinate{}, ctx.Err()
		case <-timer.C:
		}
	}

	coord, err = c.nominatim(ctx, query)
	if err == nil {
		c.logger.Debug("Geocoded address", zap.String("provider", "nominatim"), zap.String("address", address))
		return coord, nil
	}
	c.logger.Warn("Nominatim geocoding failed", zap.String("address", address), zap.Error(err))

	if ctx.Err() != nil {
		return models.Coordinate{}, ctx.Err()
	}
	return models.Coordinate{}, fmt.Errorf("%w: %q", ErrAddressNotFound, address)
}

// query collapses whitespace and appends the country to bias results.
func (c *Client) query(address string) string {
	norm := strings.Join(strings.Fields(address), " ")
	if norm == "" {
		return ""
	}
	if c.opts.Country != "" && !strings.Contains(strings.ToLower(norm), strings.ToLower(c.opts.Country)) {
		norm += ", " + c.opts.Country
	}
	return norm
}

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (c *Client) photon(ctx context.Context, query string) (models.Coordinate, error) {
	if c.opts.PhotonURL == "" {
		return models.Coordinate{}, errors.New("photon disabled")
	}

	req, err := c.newRequest(ctx, c.opts.PhotonURL)
	if err != nil {
		return models.Coordinate{}, err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("limit", "1")
	q.Set("lang", "en")
	req.URL.RawQuery = q.Encode()

	var decoded photonResponse
	if err := c.getJSON(req, &decoded); err != nil {
		return models.Coordinate{}, err
	}
	if len(decoded.Features) == 0 {
		return models.Coordinate{}, ErrAddressNotFound
	}

	// GeoJSON order is [lng, lat]
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return models.Coordinate{}, fmt.Errorf("invalid coordinate format: %v", coords)
	}
	return validated(models.Coordinate{Lat: coords[1], Lng: coords[0]})
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *Client) nominatim(ctx context.Context, query string) (models.Coordinate, error) {
	if c.opts.NominatimURL == "" {
		return models.Coordinate{}, errors.New("nominatim disabled")
	}

	req, err := c.newRequest(ctx, c.opts.NominatimURL)
	if err != nil {
		return models.Coordinate{}, err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.opts.CountryCode != "" {
		q.Set("countrycodes", c.opts.CountryCode)
	}
	req.URL.RawQuery = q.Encode()

	var decoded []nominatimResult
	if err := c.getJSON(req, &decoded); err != nil {
		return models.Coordinate{}, err
	}
	if len(decoded) == 0 {
		return models.Coordinate{}, ErrAddressNotFound
	}

	lat, err := strconv.ParseFloat(decoded[0].Lat, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid lat %q: %w", decoded[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(decoded[0].Lon, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("invalid lon %q: %w", decoded[0].Lon, err)
	}
	return validated(models.Coordinate{Lat: lat, Lng: lng})
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// Nominatim's usage policy requires an identifying User-Agent
	req.Header.Set("User-Agent", c.opts.UserAgent)
	return req, nil
}

func (c *Client) getJSON(req *http.Request, out any) error {
	resp, err := c.session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func validated(c models.Coordinate) (models.Coordinate, error) {
	if err := c.Validate(); err != nil {
		return models.Coordinate{}, err
	}
	return c, nil
}
