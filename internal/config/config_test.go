package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, "node", cfg.Node.ID)
	assert.Equal(t, "searcher", cfg.Node.ServiceKind)
	assert.Equal(t, "127.0.0.1:7100", cfg.Node.Host)

	assert.Equal(t, "0.0.0.0:7946", cfg.Cluster.GossipBind)
	assert.Empty(t, cfg.Cluster.SeedAddrs)
	assert.Equal(t, time.Second, cfg.Cluster.GossipInterval)

	assert.NotEmpty(t, cfg.Index.SegmentDir)
	assert.NotEmpty(t, cfg.Index.CentralityDir)
	assert.NotEmpty(t, cfg.Index.ID2NodeDir)
	assert.NotEmpty(t, cfg.Index.WALDir)

	assert.Equal(t, 1000, cfg.Ranking.RecallStageTopN)
	assert.Equal(t, 100, cfg.Ranking.PrecisionStageTopN)
	assert.NotNil(t, cfg.Ranking.CoefficientOverrides)

	assert.Equal(t, uint64(8), cfg.AMPC.NumShards)
	assert.Equal(t, 2, cfg.AMPC.ReplicationFactor)
	assert.Equal(t, 30*time.Second, cfg.AMPC.RoundTimeout)

	assert.Equal(t, "0.0.0.0:7100", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "console", cfg.Server.LogFormat)

	require.NoError(t, cfg.Validate())
}

func TestNewConfig_PlatformIndependentDefaults(t *testing.T) {
	_ = runtime.GOOS
	cfg := NewConfig()
	assert.True(t, filepath.IsAbs(cfg.Index.SegmentDir) || cfg.Index.SegmentDir != "")
}

func TestNodeConfig_Service(t *testing.T) {
	t.Run("known kind resolves", func(t *testing.T) {
		n := NodeConfig{ServiceKind: "dht", Host: "10.0.0.1:7100", Shard: 3}
		svc, err := n.Service()
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:7100", svc.Host)
		assert.EqualValues(t, 3, svc.Shard)
	})

	t.Run("unknown kind errors", func(t *testing.T) {
		n := NodeConfig{ServiceKind: "bogus"}
		_, err := n.Service()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown kind")
	})
}

func TestRankingConfig_CoefficientTable(t *testing.T) {
	t.Run("unknown override is rejected", func(t *testing.T) {
		r := RankingConfig{CoefficientOverrides: map[string]float64{"not_a_signal": 1.0}}
		_, err := r.CoefficientTable()
		require.Error(t, err)
	})

	t.Run("known override applies", func(t *testing.T) {
		r := RankingConfig{CoefficientOverrides: map[string]float64{"bm25f": 2.5}}
		table, err := r.CoefficientTable()
		require.NoError(t, err)
		require.NotNil(t, table)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("rejects unknown service kind", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Node.ServiceKind = "bogus"
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects negative ranking penalty", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Ranking.SitePenalty = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects zero max docs considered", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Ranking.MaxDocsConsidered = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects zero ampc shards", func(t *testing.T) {
		cfg := NewConfig()
		cfg.AMPC.NumShards = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects bad log level", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Server.LogLevel = "verbose"
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects bad log format", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Server.LogFormat = "xml"
		require.Error(t, cfg.Validate())
	})
}

func TestLoad_NoFile_UsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "node", cfg.Node.ID)
}

func TestLoad_ProjectFile_Overrides(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
version: 1
node:
  id: shard-3
  shard: 3
  service_kind: searcher
  host: 10.0.0.5:7100
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yaml"), []byte(content), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "shard-3", cfg.Node.ID)
	assert.EqualValues(t, 3, cfg.Node.Shard)
	assert.Equal(t, "10.0.0.5:7100", cfg.Node.Host)
}

func TestLoad_YmlExtension_Recognized(t *testing.T) {
	tmpDir := t.TempDir()
	content := "version: 1\nnode:\n  id: from-yml\n  service_kind: searcher\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yml"), []byte(content), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from-yml", cfg.Node.ID)
}

func TestLoad_YamlTakesPrecedenceOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yaml"), []byte("version: 1\nnode:\n  id: from-yaml\n  service_kind: searcher\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yml"), []byte("version: 1\nnode:\n  id: from-yml\n  service_kind: searcher\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Node.ID)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yaml"), []byte("not: [valid yaml"), 0o644))

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidServiceKind_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yaml"), []byte("version: 1\nnode:\n  service_kind: bogus\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("FATHOM_NODE_ID", "env-node")
	t.Setenv("FATHOM_NODE_SHARD", "7")
	t.Setenv("FATHOM_GOSSIP_BIND", "0.0.0.0:9999")
	t.Setenv("FATHOM_WAL_DIR", filepath.Join(tmpDir, "wal-override"))
	t.Setenv("FATHOM_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "env-node", cfg.Node.ID)
	assert.EqualValues(t, 7, cfg.Node.Shard)
	assert.Equal(t, "0.0.0.0:9999", cfg.Cluster.GossipBind)
	assert.Equal(t, filepath.Join(tmpDir, "wal-override"), cfg.Index.WALDir)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_EnvSeedAddrs_SplitsOnComma(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FATHOM_SEED_ADDRS", "10.0.0.1:7946,10.0.0.2:7946")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:7946", "10.0.0.2:7946"}, cfg.Cluster.SeedAddrs)
}

func TestGetUserConfigPath_XDGOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	assert.Equal(t, filepath.Join("/custom/xdg", "fathom", "config.yaml"), GetUserConfigPath())
}

func TestGetUserConfigPath_DefaultsUnderHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "fathom", "config.yaml"), GetUserConfigPath())
}

func TestFindProjectRoot_FindsConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fathom.yaml"), []byte("version: 1\n"), 0o644))

	root, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_FallsBackToStartDir(t *testing.T) {
	tmpDir := t.TempDir()
	root, err := FindProjectRoot(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}
