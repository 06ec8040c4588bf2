package skills

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWeatherCurrent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("latitude") == "" || q.Get("longitude") == "" {
			t.Error("missing coordinates in forecast request")
		}
		w.Write([]byte(`{"current":{"temperature_2m":21.4,"weather_code":2,"wind_speed_10m":8.1}}`))
	}))
	t.Cleanup(srv.Close)

	wx := NewWeather(52.52, 13.405, WithWeatherBaseURL(srv.URL))
	reply, err := wx.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if reply != "It's 21 degrees with some clouds." {
		t.Errorf("reply = %q", reply)
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want string
	}{
		{0, "clear skies"},
		{3, "some clouds"},
		{45, "fog"},
		{55, "drizzle"},
		{63, "rain"},
		{75, "snow"},
		{81, "rain showers"},
		{95, "thunderstorms"},
		{40, "mixed conditions"},
	}
	for _, tc := range cases {
		if got := describeWeatherCode(tc.code); got != tc.want {
			t.Errorf("describeWeatherCode(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
