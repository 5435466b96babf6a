package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbedAvatar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
		case "/untyped":
			w.Write([]byte("bytes"))
		case "/huge":
			w.Write(make([]byte, avatarMaxBytes+1))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	hc := srv.Client()

	got := embedAvatar(ctx, hc, srv.URL+"/ok.png")
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"), got)

	got = embedAvatar(ctx, hc, srv.URL+"/untyped")
	assert.True(t, strings.HasPrefix(got, "data:"), "embedded regardless of content type")

	// Failures fall back to the original URL.
	assert.Equal(t, srv.URL+"/missing", embedAvatar(ctx, hc, srv.URL+"/missing"))
	assert.Equal(t, srv.URL+"/huge", embedAvatar(ctx, hc, srv.URL+"/huge"), "oversized avatars stay remote")

	// Already-embedded and empty values pass through untouched.
	assert.Equal(t, "", embedAvatar(ctx, hc, ""))
	assert.Equal(t, "data:image/png;base64,AA==", embedAvatar(ctx, hc, "data:image/png;base64,AA=="))
}
