package checkout

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Params is the addressing contract of the embedded surface: the hosting
// widget serializes these into the surface location, the in-frame machine
// parses them back out.
type Params struct {
	OrderID  string
	Key      string
	Token    string
	Embedded bool
}

// ParseParams extracts checkout parameters from a surface URL. Missing
// order/key values are not an error: the form stays usable for input, it just
// cannot display an amount or take a payment.
func ParseParams(rawURL string) (Params, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Params{}, fmt.Errorf("checkout: parse surface url: %w", err)
	}
	query := parsed.Query()
	return Params{
		OrderID:  strings.TrimSpace(query.Get("order_id")),
		Key:      strings.TrimSpace(query.Get("key")),
		Token:    strings.TrimSpace(query.Get("token")),
		Embedded: query.Get("embedded") == "true",
	}, nil
}

// SurfaceURL builds the surface address the widget points its isolated
// surface at.
func SurfaceURL(base string, p Params) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("checkout: parse checkout url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("checkout: checkout url %q must be absolute", base)
	}
	query := parsed.Query()
	query.Set("order_id", p.OrderID)
	query.Set("key", p.Key)
	query.Set("embedded", strconv.FormatBool(p.Embedded))
	if p.Token != "" {
		query.Set("token", p.Token)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Origin reduces a URL to scheme://host, the form used by the widget's
// inbound allow-list.
func Origin(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// FormatAmount renders an integer minor-unit amount with two decimal places.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
