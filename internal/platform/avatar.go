package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// avatarMaxBytes caps how much image data is inlined into a data URL.
const avatarMaxBytes = 1 << 20

// embedAvatar fetches an avatar URL once and converts it to a
// self-contained base64 data URL so downstream rendering never depends on
// live third-party URLs. On any failure the original URL is returned
// unmodified; graceful degradation, not an error.
func embedAvatar(ctx context.Context, hc *http.Client, rawURL string) string {
	if rawURL == "" || strings.HasPrefix(rawURL, "data:") {
		return rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := hc.Do(req)
	if err != nil {
		return rawURL
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return rawURL
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, avatarMaxBytes+1))
	if err != nil || len(body) > avatarMaxBytes {
		return rawURL
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body))
}
