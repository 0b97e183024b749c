package desktop

import (
	"fmt"
	"net/url"
	"strconv"
)

// WindowURI is a parsed "window://..." resource URI with the two query
// parameters the desktop organizer consults: priority and fullscreen.
type WindowURI struct {
	raw *url.URL
}

// ParseWindowURI parses raw as a "window://..." resource URI. A
// non-"window" scheme is treated the same as a parse failure, so the
// organizer filters it out of the desktop.
func ParseWindowURI(raw string) (WindowURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return WindowURI{}, fmt.Errorf("parse window uri %q: %w", raw, err)
	}
	if u.Scheme != "window" {
		return WindowURI{}, fmt.Errorf("parse window uri %q: not a window:// uri", raw)
	}
	return WindowURI{raw: u}, nil
}

// Priority returns the "priority" query parameter, defaulting to 0.
func (w WindowURI) Priority() int {
	v := w.raw.Query().Get("priority")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Fullscreen returns the "fullscreen" query parameter, defaulting to false.
func (w WindowURI) Fullscreen() bool {
	v := w.raw.Query().Get("fullscreen")
	b, _ := strconv.ParseBool(v)
	return b
}
