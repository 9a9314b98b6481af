package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

func TestObjectName_ViewportSuffix(t *testing.T) {
	t.Parallel()

	name := objectName("screenshots", "abc123", snapshot.NormalizedRequest{Width: 1200, Height: 800}, 1700000000000)
	require.Equal(t, "screenshots/abc123_1200x800_1700000000000.png", name)
}

func TestObjectName_FullPageSuffix(t *testing.T) {
	t.Parallel()

	name := objectName("screenshots", "abc123", snapshot.NormalizedRequest{Width: 1200, Height: 800, FullPage: true}, 1700000000000)
	require.Equal(t, "screenshots/abc123_full_1700000000000.png", name)
}

func TestObjectFromURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "public gcs url",
			in:   "https://storage.googleapis.com/shots-bucket/screenshots/abc_full_1.png",
			want: "screenshots/abc_full_1.png",
		},
		{
			name: "bucket relative path",
			in:   "/screenshots/abc_full_1.png",
			want: "screenshots/abc_full_1.png",
		},
		{
			name:    "empty path",
			in:      "https://storage.googleapis.com/",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := objectFromURL(tc.in, "shots-bucket")
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
