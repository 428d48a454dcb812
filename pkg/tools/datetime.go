package tools

import (
	"context"
	"time"
)

const dateTimeLayout = "2006-01-02 15:04:05 MST (Monday)"

// DateTimeTool reports the current date and time in a time zone
type DateTimeTool struct {
	DefaultZone string
	// Now is overridable in tests
	Now func() time.Time
}

// NewDateTimeTool creates the get_datetime tool. An empty zone means UTC.
func NewDateTimeTool(defaultZone string) *DateTimeTool {
	return &DateTimeTool{DefaultZone: defaultZone, Now: time.Now}
}

func (t *DateTimeTool) Describe() Descriptor {
	return Descriptor{
		Name:        "get_datetime",
		Description: "Get the current date, time and weekday in a time zone",
		Params: []Param{
			{Name: "timezone", Type: "string", Description: "IANA time zone name, e.g. Asia/Seoul or UTC"},
		},
	}
}

func (t *DateTimeTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	zone := stringArg(args, "timezone")
	if zone == "" {
		zone = t.DefaultZone
	}

	loc, err := time.LoadLocation(zone)
	if err != nil || zone == "" {
		loc = time.UTC
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	return Result{Success: true, Output: now().In(loc).Format(dateTimeLayout)}, nil
}
