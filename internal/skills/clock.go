package skills

import (
	"context"
	"fmt"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
)

// Clock answers time-of-day queries in a fixed zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a Clock for the given IANA zone name. Empty means the
// host's local zone.
func NewClock(timezone string) (*Clock, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("skills: load timezone %q: %w", timezone, err)
		}
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Time returns the spoken current time.
func (c *Clock) Time() string {
	t := c.now().In(c.loc)
	return "It's " + t.Format("3:04 PM") + "."
}

// Descriptors returns the clock capability set.
func (c *Clock) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "clock.time",
			Aliases:     []string{"get_time"},
			Description: "Tell the current time.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.Time(), nil
			},
		},
	}
}
