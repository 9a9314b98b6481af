package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_AppliesDefaults(t *testing.T) {
	t.Parallel()

	norm := Normalize(RenderRequest{URL: "https://example.com"}, DefaultLimits)

	require.Equal(t, 1200, norm.Width)
	require.Equal(t, 800, norm.Height)
	require.False(t, norm.FullPage)
	require.Equal(t, "https://example.com", norm.URL)
}

func TestNormalize_ClampsOutOfRangeDimensions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		in         RenderRequest
		wantWidth  int
		wantHeight int
	}{
		{"below minimums", RenderRequest{URL: "https://a.test", Width: 100, Height: 50}, 320, 240},
		{"above maximums", RenderRequest{URL: "https://a.test", Width: 4000, Height: 3000}, 1920, 1080},
		{"negative", RenderRequest{URL: "https://a.test", Width: -5, Height: -5}, 320, 240},
		{"within range untouched", RenderRequest{URL: "https://a.test", Width: 1024, Height: 768}, 1024, 768},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			norm := Normalize(tc.in, DefaultLimits)
			require.Equal(t, tc.wantWidth, norm.Width)
			require.Equal(t, tc.wantHeight, norm.Height)
		})
	}
}

func TestNormalizedRequest_KeyIsDeterministic(t *testing.T) {
	t.Parallel()

	a := Normalize(RenderRequest{URL: "https://example.com", Width: 1200, Height: 800}, DefaultLimits)
	b := Normalize(RenderRequest{URL: "https://example.com", Width: 1200, Height: 800}, DefaultLimits)

	require.Equal(t, a.Key(), b.Key())

	c := Normalize(RenderRequest{URL: "https://example.com", Width: 1200, Height: 800, FullPage: true}, DefaultLimits)
	require.NotEqual(t, a.Key(), c.Key())
}
