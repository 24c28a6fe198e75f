package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// Place is the coarse administrative area of a coordinate.
type Place struct {
	City   string `json:"city"`
	Region string `json:"region"`
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
}

type Config struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	Language    string
}

func ConfigFromEnv() Config {
	return Config{
		AccessToken: envutil.String("MAPBOX_ACCESS_TOKEN", ""),
		BaseURL:     envutil.String("MAPBOX_BASE_URL", ""),
		Timeout:     envutil.Millis("GEOCODE_TIMEOUT_MS", 3000),
		Language:    envutil.String("MAPBOX_LANGUAGE", "en"),
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func New(log *logger.Logger, cfg Config) (Geocoder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("missing MAPBOX_ACCESS_TOKEN")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.mapbox.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &client{
		log:        log.With("client", "MapboxGeocoder"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	PlaceType []string         `json:"place_type"`
	ShortCode string           `json:"short_code"`
	Context   []featureContext `json:"context"`
}

type featureContext struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("mapbox http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), c.cfg.Timeout)
	defer cancel()

	coords := strconv.FormatFloat(lng, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)
	q := url.Values{}
	q.Set("access_token", c.cfg.AccessToken)
	q.Set("types", "place,locality,region")
	if c.cfg.Language != "" {
		q.Set("language", c.cfg.Language)
	}
	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", c.cfg.BaseURL, coords, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Place{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Place{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Place{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Place{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return Place{}, fmt.Errorf("mapbox decode error: %w", err)
	}
	place, ok := placeFromFeatures(fc.Features)
	if !ok {
		return Place{}, fmt.Errorf("mapbox: no place for %s", coords)
	}
	return place, nil
}

func placeFromFeatures(features []feature) (Place, bool) {
	var p Place
	for _, f := range features {
		switch {
		case hasType(f.PlaceType, "place") || hasType(f.PlaceType, "locality"):
			if p.City == "" {
				p.City = f.Text
			}
			for _, cx := range f.Context {
				if strings.HasPrefix(cx.ID, "region.") && p.Region == "" {
					p.Region = regionLabel(cx.Text, cx.ShortCode)
				}
			}
		case hasType(f.PlaceType, "region"):
			if p.Region == "" {
				p.Region = regionLabel(f.Text, f.ShortCode)
			}
		}
	}
	return p, p.City != "" || p.Region != ""
}

// regionLabel prefers the ISO 3166-2 subdivision code ("US-CA" becomes "CA").
func regionLabel(text, shortCode string) string {
	if i := strings.LastIndex(shortCode, "-"); i >= 0 && i < len(shortCode)-1 {
		return strings.ToUpper(shortCode[i+1:])
	}
	return text
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

type noopGeocoder struct{}

// NewNoop returns a geocoder that always fails, leaving callers to use
// placeholders.
func NewNoop() Geocoder { return noopGeocoder{} }

func (noopGeocoder) Reverse(context.Context, float64, float64) (Place, error) {
	return Place{}, fmt.Errorf("mapbox: geocoding disabled")
}
