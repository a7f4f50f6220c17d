package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"titan/internal/types"
)

// securityHeaders are the response headers the scan checks for.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
}

// RegisterScanTools adds security_scan, a basic header posture check on a
// target site.
func RegisterScanTools(r *Registry) {
	r.MustRegister(&Tool{
		Name:        "security_scan",
		Description: "Check a site's HTTP security headers and report which are missing.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The site URL to scan"},
			},
			"required": []string{"url"},
		},
		General: true,
		Execute: func(ctx context.Context, args map[string]any, caller types.Caller) (any, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			u, err := url.Parse(target)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return nil, fmt.Errorf("invalid url: %s", target)
			}

			ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("scan request failed: %w", err)
			}
			defer resp.Body.Close()

			present := map[string]string{}
			var missing []string
			for _, h := range securityHeaders {
				if v := resp.Header.Get(h); v != "" {
					present[h] = v
				} else {
					missing = append(missing, h)
				}
			}
			return map[string]any{
				"url":     target,
				"status":  resp.StatusCode,
				"https":   u.Scheme == "https",
				"present": present,
				"missing": missing,
			}, nil
		},
	})
}
