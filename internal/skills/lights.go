package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
)

// Lights talks to a Hue-compatible bridge. Rooms map onto bridge groups,
// matched by name case-insensitively.
type Lights struct {
	baseURL  string
	username string
	client   *http.Client
}

// LightsOption is a functional option for configuring Lights.
type LightsOption func(*Lights)

// WithLightsHTTPClient overrides the HTTP client, mainly for tests.
func WithLightsHTTPClient(c *http.Client) LightsOption {
	return func(l *Lights) { l.client = c }
}

// NewLights creates a bridge client. bridgeURL is the bare bridge address
// (e.g. "http://192.168.1.10"); username is the bridge API user.
func NewLights(bridgeURL, username string, opts ...LightsOption) *Lights {
	l := &Lights{
		baseURL:  strings.TrimRight(bridgeURL, "/"),
		username: username,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// hueGroup is the subset of the bridge's group object the skill needs.
type hueGroup struct {
	Name string `json:"name"`
}

// TurnOn switches every light in room on.
func (l *Lights) TurnOn(ctx context.Context, room string) (string, error) {
	if err := l.setGroupState(ctx, room, true); err != nil {
		return "", err
	}
	return "The " + room + " lights are on.", nil
}

// TurnOff switches every light in room off.
func (l *Lights) TurnOff(ctx context.Context, room string) (string, error) {
	if err := l.setGroupState(ctx, room, false); err != nil {
		return "", err
	}
	return "The " + room + " lights are off.", nil
}

func (l *Lights) setGroupState(ctx context.Context, room string, on bool) error {
	id, err := l.groupID(ctx, room)
	if err != nil {
		return err
	}

	body := strings.NewReader(fmt.Sprintf(`{"on":%t}`, on))
	url := fmt.Sprintf("%s/api/%s/groups/%s/action", l.baseURL, l.username, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("skills: build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("skills: bridge request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("skills: bridge returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// groupID resolves room to a bridge group id by name.
func (l *Lights) groupID(ctx context.Context, room string) (string, error) {
	url := fmt.Sprintf("%s/api/%s/groups", l.baseURL, l.username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("skills: build bridge request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skills: list bridge groups: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("skills: bridge returned %d listing groups", resp.StatusCode)
	}

	var groups map[string]hueGroup
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return "", fmt.Errorf("skills: decode bridge groups: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(room))
	for id, g := range groups {
		if strings.ToLower(g.Name) == want {
			return id, nil
		}
	}
	return "", fmt.Errorf("skills: no light group named %q", room)
}

// Descriptors returns the lights capability set.
func (l *Lights) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "light.turn_on",
			Aliases:     []string{"lights_on"},
			Description: "Turn on the lights in a room.",
			Params: []capability.Param{
				{Name: "room", Type: capability.TypeString, Description: "Room name, e.g. \"kitchen\".", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return l.TurnOn(ctx, args["room"].(string))
			},
		},
		{
			Name:        "light.turn_off",
			Aliases:     []string{"lights_off"},
			Description: "Turn off the lights in a room.",
			Params: []capability.Param{
				{Name: "room", Type: capability.TypeString, Description: "Room name, e.g. \"kitchen\".", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return l.TurnOff(ctx, args["room"].(string))
			},
		},
	}
}
