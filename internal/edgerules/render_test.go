package edgerules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/static-hub/static-hub/internal/settings"
)

func TestFormatTTL(t *testing.T) {
	testCases := []struct {
		seconds int64
		want    string
	}{
		{31536000, "1y"},
		{2592000, "1M"},
		{604800, "1w"},
		{1209600, "2w"},
		{86400, "1d"},
		{3600, "1h"},
		{7200, "2h"},
		{120, "2m"},
		{90, "90s"},
		{0, "0s"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, FormatTTL(tc.seconds), "seconds=%d", tc.seconds)
	}
}

func TestRenderUnknownDialect(t *testing.T) {
	_, err := Render("lighttpd", Input{})
	require.ErrorIs(t, err, ErrUnknownDialect)
}

func TestBuiltinDialectsRegistered(t *testing.T) {
	require.Equal(t, []string{DialectApache, DialectNginx}, Keys())
	d, ok := Resolve("NGINX")
	require.True(t, ok)
	require.False(t, d.Merge)
	d, ok = Resolve(DialectApache)
	require.True(t, ok)
	require.True(t, d.Merge)
}

func browserCacheInput(ttl time.Duration) Input {
	return Input{Settings: settings.Settings{BrowserCacheEnabled: true, BrowserCacheTTL: ttl}}
}

func TestBrowserCacheBlock(t *testing.T) {
	out, err := Render(DialectNginx, browserCacheInput(365*24*time.Hour))
	require.NoError(t, err)
	require.Contains(t, out, "expires 1y;")

	out, err = Render(DialectApache, browserCacheInput(time.Hour))
	require.NoError(t, err)
	require.Contains(t, out, `"access plus 3600 seconds"`)
	require.Contains(t, out, "max-age=3600")

	for _, dialect := range []string{DialectApache, DialectNginx} {
		disabled := Input{Settings: settings.Settings{BrowserCacheEnabled: false, BrowserCacheTTL: time.Hour}}
		out, err = Render(dialect, disabled)
		require.NoError(t, err)
		require.NotContains(t, out, "expires ")
		require.NotContains(t, out, "ExpiresActive")

		zero := browserCacheInput(0)
		out, err = Render(dialect, zero)
		require.NoError(t, err)
		require.NotContains(t, out, "expires ")
		require.NotContains(t, out, "ExpiresActive")
	}
}

func TestNextGenOnlyForRewriteDelivery(t *testing.T) {
	rewrite := Input{Settings: settings.Settings{ImageDelivery: settings.ImageDeliveryRewrite, NextGenFormat: "webp"}}
	picture := Input{Settings: settings.Settings{ImageDelivery: settings.ImageDeliveryPicture, NextGenFormat: "webp"}}

	out, err := Render(DialectApache, rewrite)
	require.NoError(t, err)
	require.Contains(t, out, "RewriteCond %{HTTP_ACCEPT} image/webp")
	require.Contains(t, out, "RewriteCond %{REQUEST_FILENAME}.webp -f")
	require.Contains(t, out, "Header append Vary Accept")

	out, err = Render(DialectNginx, rewrite)
	require.NoError(t, err)
	require.Contains(t, out, `if ($http_accept ~* "image/webp")`)
	require.Contains(t, out, "try_files $uri$static_hub_suffix $uri =404;")
	require.Contains(t, out, "add_header Vary Accept;")

	for _, dialect := range []string{DialectApache, DialectNginx} {
		out, err = Render(dialect, picture)
		require.NoError(t, err)
		require.NotContains(t, out, "Vary Accept")
	}
}

func TestNginxPrivateBlockIsUnconditional(t *testing.T) {
	out, err := Render(DialectNginx, Input{Origin: "http://127.0.0.1:8080/", CachePrefix: "/cache/"})
	require.NoError(t, err)
	require.Contains(t, out, "location ^~ /cache/private/ {")
	require.Contains(t, out, "deny all;")
	require.Contains(t, out, "proxy_pass http://127.0.0.1:8080;")
	require.Contains(t, out, "allow all;")

	out, err = Render(DialectNginx, Input{})
	require.NoError(t, err)
	require.Contains(t, out, "location ^~ /static-hub/private/ {")
	require.NotContains(t, out, "proxy_pass")
}

func TestRenderWrappedInMarkers(t *testing.T) {
	for _, dialect := range []string{DialectApache, DialectNginx} {
		out, err := Render(dialect, Input{})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(out, BeginMarker+"\n"), dialect)
		require.True(t, strings.HasSuffix(out, EndMarker+"\n"), dialect)
		require.Equal(t, 1, strings.Count(out, BeginMarker))
	}
}
