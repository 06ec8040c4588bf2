package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
)

const defaultWeatherURL = "https://api.open-meteo.com"

// Weather fetches current conditions from Open-Meteo for a fixed point.
type Weather struct {
	baseURL   string
	latitude  float64
	longitude float64
	client    *http.Client
}

// WeatherOption is a functional option for configuring Weather.
type WeatherOption func(*Weather)

// WithWeatherBaseURL overrides the API endpoint, mainly for tests.
func WithWeatherBaseURL(u string) WeatherOption {
	return func(w *Weather) { w.baseURL = u }
}

// WithWeatherHTTPClient overrides the HTTP client.
func WithWeatherHTTPClient(c *http.Client) WeatherOption {
	return func(w *Weather) { w.client = c }
}

// NewWeather creates a Weather skill for the given coordinates.
func NewWeather(latitude, longitude float64, opts ...WeatherOption) *Weather {
	w := &Weather{
		baseURL:   defaultWeatherURL,
		latitude:  latitude,
		longitude: longitude,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type meteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Current returns a spoken summary of the present conditions.
func (w *Weather) Current(ctx context.Context) (string, error) {
	u := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&current=temperature_2m,weather_code,wind_speed_10m",
		w.baseURL, w.latitude, w.longitude,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("skills: build weather request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skills: weather request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("skills: weather service returned %d", resp.StatusCode)
	}

	var parsed meteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("skills: decode weather response: %w", err)
	}

	return fmt.Sprintf("It's %d degrees with %s.",
		int(math.Round(parsed.Current.Temperature)),
		describeWeatherCode(parsed.Current.WeatherCode),
	), nil
}

// describeWeatherCode maps WMO weather interpretation codes onto short spoken
// phrases.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear skies"
	case code <= 3:
		return "some clouds"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorms"
	default:
		return "mixed conditions"
	}
}

// Descriptors returns the weather capability set.
func (w *Weather) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "weather.current",
			Aliases:     []string{"get_weather"},
			Description: "Report the current weather conditions.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return w.Current(ctx)
			},
		},
	}
}
