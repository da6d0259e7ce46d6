package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tokwatch_test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("TOKWATCH_KEYWORDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CollectorBrowser, cfg.Collector)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 5, cfg.MaxVideos)
	assert.Equal(t, 20, cfg.MaxComments)
	assert.Equal(t, 1, cfg.CollectWorkers)
	assert.Equal(t, 10, cfg.AnalysisBatchSize)
	assert.Equal(t, 2, cfg.AnalysisWorkers)
	assert.Equal(t, 2, cfg.AnalysisRetries)
	assert.Equal(t, 60*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.Keywords)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tokwatch_test")
	t.Setenv("TOKWATCH_COLLECTOR", "actor")
	t.Setenv("TOKWATCH_ACTOR_URL", "https://actor.example.com")
	t.Setenv("TOKWATCH_ACTOR_TOKEN", "tok")
	t.Setenv("TOKWATCH_HEADLESS", "false")
	t.Setenv("TOKWATCH_MAX_VIDEOS", "12")
	t.Setenv("TOKWATCH_ANALYSIS_TIMEOUT", "120")
	t.Setenv("TOKWATCH_KEYWORDS", "flood update, road closure ,, ")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CollectorActor, cfg.Collector)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 12, cfg.MaxVideos)
	assert.Equal(t, 120*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, []string{"flood update", "road closure"}, cfg.Keywords)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ActorRequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tokwatch_test")
	t.Setenv("TOKWATCH_COLLECTOR", "actor")
	t.Setenv("TOKWATCH_ACTOR_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKWATCH_ACTOR_URL")
}

func TestLoad_RejectsUnknownCollector(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tokwatch_test")
	t.Setenv("TOKWATCH_COLLECTOR", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tokwatch_test")
	t.Setenv("TOKWATCH_MAX_VIDEOS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxVideos)
}
