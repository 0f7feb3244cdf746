// Package geocode resolves a free-text address to coordinates through a
// Nominatim compatible search service. It is independent of the matcher and
// reports its own error category.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	DefaultURL       = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "streetmatch"
	DefaultTimeout   = 10 * time.Second
	DefaultRate      = 1.0
)

var (
	// ErrEmptyAddress is returned when nothing is left after folding.
	ErrEmptyAddress = errors.New("address is required")
	// ErrNotFound means the service has no match for the address.
	ErrNotFound = errors.New("address not found")
	// ErrTimeout means the service did not answer in time.
	ErrTimeout = errors.New("geocoding timed out")
	// ErrService covers transport failures and unexpected responses.
	ErrService = errors.New("geocoding service error")
)

// Place is a resolved location.
type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Place, error)
}

// Config configures a Nominatim client. Zero values take the defaults.
type Config struct {
	URL        string
	UserAgent  string
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
}

// Nominatim is a rate-limited client for the /search endpoint.
type Nominatim struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Nominatim client.
func New(cfg Config) *Nominatim {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRate
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

type searchResult struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
})))

// FoldASCII decomposes the address and drops everything outside ASCII.
func FoldASCII(address string) string {
	out, _, err := transform.String(asciiFold, address)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Geocode returns the best match for address.
func (n *Nominatim) Geocode(ctx context.Context, address string) (Place, error) {
	q := FoldASCII(address)
	if q == "" {
		return Place{}, ErrEmptyAddress
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		return Place{}, fmt.Errorf("%w: waiting for rate limiter: %v", ErrTimeout, err)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("%w: %v", ErrService, err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Place{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Place{}, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()
	log.Debugf("Geocode %q: %s in %s", q, resp.Status, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Place{}, fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		if isTimeout(err) {
			return Place{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Place{}, fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrNotFound, q)
	}
	return results[0].place()
}

func (r searchResult) place() (Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: bad latitude %q", ErrService, r.Lat)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("%w: bad longitude %q", ErrService, r.Lon)
	}
	name := r.Name
	if name == "" {
		name = r.DisplayName
	}
	return Place{Name: name, Latitude: lat, Longitude: lon}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Kind names the category of a geocoding error for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyAddress):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrService):
		return "service_error"
	default:
		return "internal"
	}
}
