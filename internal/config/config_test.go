package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-campus-client/internal/config"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "https://api.campuslink.app/v1", cfg.GetBaseURL())
	require.Equal(t, 30*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 10, cfg.GetFeedPostsPerSource())
	require.Equal(t, 50, cfg.GetFeedDisplayCap())
	require.Equal(t, 4, cfg.GetFeedFanOutLimit())
	require.NotEmpty(t, cfg.GetCredentialsPath())
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("CAMPUSLINK_API_URL", "http://localhost:9000")
	t.Setenv("CAMPUSLINK_REQUEST_TIMEOUT", "5s")
	t.Setenv("CAMPUSLINK_FEED_DISPLAY_CAP", "25")
	t.Setenv("CAMPUSLINK_CREDENTIALS_PATH", "/tmp/creds.json")

	cfg, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9000", cfg.GetBaseURL())
	require.Equal(t, 5*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 25, cfg.GetFeedDisplayCap())
	require.Equal(t, "/tmp/creds.json", cfg.GetCredentialsPath())
}
