package mapbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const reverseFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "place.123",
      "text": "Los Angeles",
      "place_type": ["place"],
      "context": [
        {"id": "district.1", "text": "Los Angeles County"},
        {"id": "region.9", "text": "California", "short_code": "US-CA"},
        {"id": "country.1", "text": "United States", "short_code": "us"}
      ]
    },
    {
      "id": "region.9",
      "text": "California",
      "place_type": ["region"],
      "short_code": "US-CA"
    }
  ]
}`

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/geocoding/v5/mapbox.places/-118.243700,34.052200.json") {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "tok" {
			t.Errorf("access_token: got=%q", r.URL.Query().Get("access_token"))
		}
		_, _ = w.Write([]byte(reverseFixture))
	}))
	defer srv.Close()

	g, err := New(logger.Nop(), Config{AccessToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	place, err := g.Reverse(context.Background(), 34.0522, -118.2437)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if place.City != "Los Angeles" || place.Region != "CA" {
		t.Fatalf("Reverse: want Los Angeles/CA got=%+v", place)
	}
}

func TestReverseNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	g, _ := New(logger.Nop(), Config{AccessToken: "tok", BaseURL: srv.URL})
	if _, err := g.Reverse(context.Background(), 0, 0); err == nil {
		t.Fatalf("Reverse: expected error for empty result")
	}
}

func TestReverseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g, _ := New(logger.Nop(), Config{AccessToken: "tok", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := g.Reverse(context.Background(), 1, 1); err == nil {
		t.Fatalf("Reverse: expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Reverse: timeout not honored")
	}
}

func TestReverseHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized - Invalid Token"}`))
	}))
	defer srv.Close()

	g, _ := New(logger.Nop(), Config{AccessToken: "bad", BaseURL: srv.URL})
	_, err := g.Reverse(context.Background(), 1, 1)
	he, ok := err.(*HTTPError)
	if !ok || he.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Reverse: want HTTPError 401 got=%v", err)
	}
}

func TestRegionLabel(t *testing.T) {
	if got := regionLabel("California", "US-CA"); got != "CA" {
		t.Fatalf("regionLabel: want=CA got=%s", got)
	}
	if got := regionLabel("Ontario", ""); got != "Ontario" {
		t.Fatalf("regionLabel: want=Ontario got=%s", got)
	}
}
