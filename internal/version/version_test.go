package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("DefaultValues", func(t *testing.T) {
		t.Parallel()
		client := NewClient()

		assert.Equal(t, DefaultBaseURL, client.baseURL)
		assert.NotNil(t, client.httpClient)
		assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
		assert.Contains(t, client.userAgent, "halyard")
	})

	t.Run("WithBaseURL", func(t *testing.T) {
		t.Parallel()
		client := NewClient(WithBaseURL("https://custom.api.github.com/"))

		// Should trim trailing slash
		assert.Equal(t, "https://custom.api.github.com", client.baseURL)
	})

	t.Run("WithHTTPClient", func(t *testing.T) {
		t.Parallel()
		customClient := &http.Client{Timeout: 30 * time.Second}
		client := NewClient(WithHTTPClient(customClient))

		assert.Equal(t, customClient, client.httpClient)
	})

	t.Run("WithTimeout", func(t *testing.T) {
		t.Parallel()
		client := NewClient(WithTimeout(5 * time.Second))

		assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	})
}

func TestGetLatestRelease(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/halyard-sh/halyard/releases/latest", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag_name":"v1.4.0","name":"v1.4.0"}`))
		}))
		defer srv.Close()

		client := NewClient(WithBaseURL(srv.URL))
		release, err := client.GetLatestRelease(context.Background(), "halyard-sh", "halyard")
		require.NoError(t, err)
		assert.Equal(t, "v1.4.0", release.TagName)
	})

	t.Run("APIFailure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusForbidden)
		}))
		defer srv.Close()

		client := NewClient(WithBaseURL(srv.URL))
		_, err := client.GetLatestRelease(context.Background(), "halyard-sh", "halyard")
		require.ErrorIs(t, err, ErrGitHubAPIFailed)
	})

	t.Run("InvalidOwnerRepo", func(t *testing.T) {
		t.Parallel()
		client := NewClient()

		_, err := client.GetLatestRelease(context.Background(), "", "halyard")
		require.ErrorIs(t, err, ErrInvalidOwner)

		_, err = client.GetLatestRelease(context.Background(), "halyard-sh", "")
		require.ErrorIs(t, err, ErrInvalidRepo)

		_, err = client.GetLatestRelease(context.Background(), "../etc", "halyard")
		require.ErrorIs(t, err, ErrInvalidOwnerRepo)
	})
}

func TestCheckForUpdate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	info, err := client.CheckForUpdate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Version, info.Current)
	assert.Equal(t, "v99.0.0", info.Latest)
	assert.True(t, info.IsNewer, "any release is newer than a dev build")
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v1   string
		v2   string
		want int
	}{
		{"Equal", "1.2.3", "1.2.3", 0},
		{"EqualWithPrefix", "v1.2.3", "1.2.3", 0},
		{"PatchNewer", "1.2.4", "1.2.3", 1},
		{"MinorOlder", "1.1.9", "1.2.0", -1},
		{"MajorNewer", "2.0.0", "1.9.9", 1},
		{"DevOlderThanRelease", "dev", "0.0.1", -1},
		{"ReleaseNewerThanDev", "1.0.0", "dev", 1},
		{"BothDev", "dev", "", 0},
		{"CommitHashOlder", "abc1234", "0.1.0", -1},
		{"PreReleaseSuffixIgnored", "1.2.3-rc1", "1.2.3", 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CompareVersions(tc.v1, tc.v2))
		})
	}
}

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNewerVersion("1.0.0", "1.0.1"))
	assert.False(t, IsNewerVersion("1.0.1", "1.0.0"))
	assert.False(t, IsNewerVersion("1.0.0", "1.0.0"))
	assert.True(t, IsNewerVersion("dev", "0.0.1"))
}

func TestIsCommitHash(t *testing.T) {
	t.Parallel()

	assert.True(t, isCommitHash("abc1234"))
	assert.True(t, isCommitHash("deadbeefcafe"))
	assert.True(t, isCommitHash("abc1234-dirty"))
	assert.False(t, isCommitHash("1234567"), "pure numeric strings are version-like")
	assert.False(t, isCommitHash("xyz"), "too short and not hex")
	assert.False(t, isCommitHash("1.2.3"))
}

func TestCurrent(t *testing.T) {
	t.Parallel()
	assert.Contains(t, Current(), Version)
}
