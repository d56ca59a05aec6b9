package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fathom-search/fathom/pkg/schema"
)

// Config is the complete configuration for a fathom node: its own
// identity, the cluster it joins, where its index lives on disk, and
// the ranking and AMPC defaults it serves with until an Optic or a
// job request overrides them.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Node    NodeConfig    `yaml:"node" json:"node"`
	Cluster ClusterConfig `yaml:"cluster" json:"cluster"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Ranking RankingConfig `yaml:"ranking" json:"ranking"`
	AMPC    AMPCConfig    `yaml:"ampc" json:"ampc"`
	Server  ServerConfig  `yaml:"server" json:"server"`

	// Bangs maps a query bang tag (the text after '!') to a redirect URL
	// template containing the literal placeholder "{{{s}}}".
	Bangs map[string]string `yaml:"bangs" json:"bangs"`
}

// BangTable builds the schema.BangTable a shard's bang short-circuit
// consults from this config's redirect templates.
func (c *Config) BangTable() schema.BangTable {
	return schema.BangTable(c.Bangs)
}

// NodeConfig identifies this node within the cluster: a stable id, the
// shard of the index it owns (if any), and the service it advertises
// over gossip once started.
type NodeConfig struct {
	// ID is this node's base identity, suffixed with a random uuid by
	// pkg/cluster.Join so repeated joins never collide.
	ID string `yaml:"id" json:"id"`
	// Shard is the index/DHT shard this node owns. Ignored by nodes
	// that advertise a shard-less service (API, webgraph).
	Shard uint64 `yaml:"shard" json:"shard"`
	// ServiceKind is the advertised service, one of "searcher", "api",
	// "webgraph", "dht", "live_index", "harmonic_worker",
	// "approx_harmonic_worker", "shortest_path_worker", "entity_searcher".
	ServiceKind string `yaml:"service_kind" json:"service_kind"`
	// Host is the address this node's service listens on, advertised
	// to peers via gossip.
	Host string `yaml:"host" json:"host"`
}

// ClusterConfig configures this node's gossip membership.
type ClusterConfig struct {
	// GossipBind is the local UDP address the gossiper listens on.
	GossipBind string `yaml:"gossip_bind" json:"gossip_bind"`
	// SeedAddrs are peer gossip addresses to bootstrap membership from.
	// Empty on the first node of a fresh cluster.
	SeedAddrs []string `yaml:"seed_addrs" json:"seed_addrs"`
	// GossipInterval is the configured push-gossip period. Default: 1s.
	// pkg/cluster does not read it: its gossiper ticks at a fixed 1s and
	// pushes its table to up to three random peers per tick.
	GossipInterval time.Duration `yaml:"gossip_interval" json:"gossip_interval"`
}

// IndexConfig locates this node's on-disk index state.
type IndexConfig struct {
	// SegmentDir holds the inverted-index segments (pkg/segment).
	SegmentDir string `yaml:"segment_dir" json:"segment_dir"`
	// CentralityDir holds the harmonic/page centrality DHT key-value
	// store this shard serves.
	CentralityDir string `yaml:"centrality_dir" json:"centrality_dir"`
	// ID2NodeDir holds the id-to-host mapping used by webgraph and
	// AMPC jobs to resolve a node id back to a hostname.
	ID2NodeDir string `yaml:"id2node_dir" json:"id2node_dir"`
	// WALDir holds the write-ahead segments a LiveIndex shard's
	// incremental writer appends before they are promoted into
	// SegmentDir. Only used by nodes advertising "live_index".
	WALDir string `yaml:"wal_dir" json:"wal_dir"`
}

// RankingConfig configures the multi-stage ranking pipeline's defaults:
// the signal coefficient table a query starts from before any
// per-query Optic override, and the collector's worst-case cost
// budget.
type RankingConfig struct {
	// CoefficientOverrides replaces a named signal's default
	// coefficient (schema.Signal.DefaultCoefficient). Keys are the
	// signal names in coefficientNames; unknown keys are rejected by
	// Validate.
	CoefficientOverrides map[string]float64 `yaml:"coefficient_overrides" json:"coefficient_overrides"`

	SitePenalty          float64 `yaml:"site_penalty" json:"site_penalty"`
	TitlePenalty         float64 `yaml:"title_penalty" json:"title_penalty"`
	URLPenalty           float64 `yaml:"url_penalty" json:"url_penalty"`
	URLWithoutTLDPenalty float64 `yaml:"url_without_tld_penalty" json:"url_without_tld_penalty"`
	MaxDocsConsidered    uint64  `yaml:"max_docs_considered" json:"max_docs_considered"`

	// RecallStageTopN and PrecisionStageTopN bound how many documents
	// survive each pipeline stage (pkg/pipeline.Stage.StageTopN).
	RecallStageTopN    int `yaml:"recall_stage_top_n" json:"recall_stage_top_n"`
	PrecisionStageTopN int `yaml:"precision_stage_top_n" json:"precision_stage_top_n"`
}

// AMPCConfig configures the bulk-synchronous analytics coordinator
// (pkg/ampc).
type AMPCConfig struct {
	// NumShards is the number of AMPC worker shards jobs are split
	// across, independent of the query-serving index's shard count.
	NumShards uint64 `yaml:"num_shards" json:"num_shards"`
	// ReplicationFactor is how many worker addresses each shard is
	// assigned to by ampc.AssignShards.
	ReplicationFactor int `yaml:"replication_factor" json:"replication_factor"`
	// RoundTimeout is the configured per-round time budget. The
	// coordinator in pkg/ampc does not read it: a round waits until every
	// shard reports done or the caller's context ends.
	RoundTimeout time.Duration `yaml:"round_timeout" json:"round_timeout"`
}

// ServerConfig configures this node's RPC listener and log verbosity.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFormat  string `yaml:"log_format" json:"log_format"` // "json" or "console"
}

// coefficientNames maps a config-file-friendly signal name to its
// schema.Signal. Only signals worth hand-tuning from a config file are
// listed; the rest keep their DefaultCoefficient.
var coefficientNames = map[string]schema.Signal{
	"bm25f":                     schema.SignalBm25F,
	"bm25_title":                schema.SignalBm25Title,
	"bm25_clean_body":           schema.SignalBm25CleanBody,
	"bm25_keywords":             schema.SignalBm25Keywords,
	"bm25_backlink_text":        schema.SignalBm25BacklinkText,
	"host_centrality":           schema.SignalHostCentrality,
	"page_centrality":           schema.SignalPageCentrality,
	"is_homepage":               schema.SignalIsHomepage,
	"tracker_score":             schema.SignalTrackerScore,
	"inbound_similarity":        schema.SignalInboundSimilarity,
	"query_centrality":          schema.SignalQueryCentrality,
	"lambdamart":                schema.SignalLambdaMart,
	"cross_encoder_snippet":     schema.SignalCrossEncoderSnippet,
	"cross_encoder_title":       schema.SignalCrossEncoderTitle,
	"title_embedding_similarity": schema.SignalTitleEmbeddingSimilarity,
	"has_ads":                   schema.SignalHasAds,
}

// CoefficientTable builds a schema.CoefficientTable from this config's
// overrides, ready to hand to pkg/pipeline's recall/precision builders
// before any per-query Optic override is merged on top.
func (r RankingConfig) CoefficientTable() (*schema.CoefficientTable, error) {
	table := schema.NewCoefficientTable()
	for name, coeff := range r.CoefficientOverrides {
		sig, ok := coefficientNames[name]
		if !ok {
			return nil, fmt.Errorf("ranking.coefficient_overrides: unknown signal %q", name)
		}
		table.MergeOverwrite(sig, coeff)
	}
	return table, nil
}

// CollectorConfig builds the schema.CollectorConfig this ranking config
// passes into query collection.
func (r RankingConfig) CollectorConfig() schema.CollectorConfig {
	return schema.CollectorConfig{
		SitePenalty:          r.SitePenalty,
		TitlePenalty:         r.TitlePenalty,
		URLPenalty:           r.URLPenalty,
		URLWithoutTLDPenalty: r.URLWithoutTLDPenalty,
		MaxDocsConsidered:    r.MaxDocsConsidered,
		RecallStageTopN:      r.RecallStageTopN,
	}
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	defaults := schema.DefaultCollectorConfig()
	return &Config{
		Version: 1,
		Node: NodeConfig{
			ID:          "node",
			ServiceKind: "searcher",
			Host:        "127.0.0.1:7100",
		},
		Cluster: ClusterConfig{
			GossipBind:     "0.0.0.0:7946",
			GossipInterval: time.Second,
		},
		Index: IndexConfig{
			SegmentDir:    defaultStatePath("segments"),
			CentralityDir: defaultStatePath("centrality"),
			ID2NodeDir:    defaultStatePath("id2node"),
			WALDir:        defaultStatePath("wal"),
		},
		Ranking: RankingConfig{
			CoefficientOverrides: map[string]float64{},
			SitePenalty:          defaults.SitePenalty,
			TitlePenalty:         defaults.TitlePenalty,
			URLPenalty:           defaults.URLPenalty,
			URLWithoutTLDPenalty: defaults.URLWithoutTLDPenalty,
			MaxDocsConsidered:    defaults.MaxDocsConsidered,
			RecallStageTopN:      1000,
			PrecisionStageTopN:   100,
		},
		AMPC: AMPCConfig{
			NumShards:         8,
			ReplicationFactor: 2,
			RoundTimeout:      30 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:7100",
			LogLevel:   "info",
			LogFormat:  "console",
		},
		Bangs: map[string]string{
			"g":  "https://www.google.com/search?q={{{s}}}",
			"yt": "https://www.youtube.com/results?search_query={{{s}}}",
			"w":  "https://en.wikipedia.org/wiki/Special:Search?search={{{s}}}",
			"gh": "https://github.com/search?q={{{s}}}",
		},
	}
}

// defaultStatePath returns ~/.fathom/<name>, falling back to a temp
// directory if the home directory cannot be resolved.
func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fathom", name)
	}
	return filepath.Join(home, ".fathom", name)
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory spec:
//   - $XDG_CONFIG_HOME/fathom/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/fathom/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fathom", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "fathom", "config.yaml")
	}
	return filepath.Join(home, ".config", "fathom", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user
// configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it
// exists. Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration for dir, applying sources in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/fathom/config.yaml)
//  3. Project config (fathom.yaml in dir)
//  4. Environment variables (FATHOM_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from fathom.yaml or
// fathom.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, "fathom.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, "fathom.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Node.ID != "" {
		c.Node.ID = other.Node.ID
	}
	if other.Node.Shard != 0 {
		c.Node.Shard = other.Node.Shard
	}
	if other.Node.ServiceKind != "" {
		c.Node.ServiceKind = other.Node.ServiceKind
	}
	if other.Node.Host != "" {
		c.Node.Host = other.Node.Host
	}

	if other.Cluster.GossipBind != "" {
		c.Cluster.GossipBind = other.Cluster.GossipBind
	}
	if len(other.Cluster.SeedAddrs) > 0 {
		c.Cluster.SeedAddrs = other.Cluster.SeedAddrs
	}
	if other.Cluster.GossipInterval != 0 {
		c.Cluster.GossipInterval = other.Cluster.GossipInterval
	}

	if other.Index.SegmentDir != "" {
		c.Index.SegmentDir = other.Index.SegmentDir
	}
	if other.Index.CentralityDir != "" {
		c.Index.CentralityDir = other.Index.CentralityDir
	}
	if other.Index.ID2NodeDir != "" {
		c.Index.ID2NodeDir = other.Index.ID2NodeDir
	}
	if other.Index.WALDir != "" {
		c.Index.WALDir = other.Index.WALDir
	}

	for name, coeff := range other.Ranking.CoefficientOverrides {
		if c.Ranking.CoefficientOverrides == nil {
			c.Ranking.CoefficientOverrides = map[string]float64{}
		}
		c.Ranking.CoefficientOverrides[name] = coeff
	}
	if other.Ranking.SitePenalty != 0 {
		c.Ranking.SitePenalty = other.Ranking.SitePenalty
	}
	if other.Ranking.TitlePenalty != 0 {
		c.Ranking.TitlePenalty = other.Ranking.TitlePenalty
	}
	if other.Ranking.URLPenalty != 0 {
		c.Ranking.URLPenalty = other.Ranking.URLPenalty
	}
	if other.Ranking.URLWithoutTLDPenalty != 0 {
		c.Ranking.URLWithoutTLDPenalty = other.Ranking.URLWithoutTLDPenalty
	}
	if other.Ranking.MaxDocsConsidered != 0 {
		c.Ranking.MaxDocsConsidered = other.Ranking.MaxDocsConsidered
	}
	if other.Ranking.RecallStageTopN != 0 {
		c.Ranking.RecallStageTopN = other.Ranking.RecallStageTopN
	}
	if other.Ranking.PrecisionStageTopN != 0 {
		c.Ranking.PrecisionStageTopN = other.Ranking.PrecisionStageTopN
	}

	if other.AMPC.NumShards != 0 {
		c.AMPC.NumShards = other.AMPC.NumShards
	}
	if other.AMPC.ReplicationFactor != 0 {
		c.AMPC.ReplicationFactor = other.AMPC.ReplicationFactor
	}
	if other.AMPC.RoundTimeout != 0 {
		c.AMPC.RoundTimeout = other.AMPC.RoundTimeout
	}

	if other.Server.ListenAddr != "" {
		c.Server.ListenAddr = other.Server.ListenAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFormat != "" {
		c.Server.LogFormat = other.Server.LogFormat
	}

	for tag, tmpl := range other.Bangs {
		if c.Bangs == nil {
			c.Bangs = map[string]string{}
		}
		c.Bangs[tag] = tmpl
	}
}

// applyEnvOverrides applies FATHOM_* environment variable overrides,
// the highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FATHOM_NODE_ID"); v != "" {
		c.Node.ID = v
	}
	if v := os.Getenv("FATHOM_NODE_SHARD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Node.Shard = n
		}
	}
	if v := os.Getenv("FATHOM_NODE_SERVICE_KIND"); v != "" {
		c.Node.ServiceKind = v
	}
	if v := os.Getenv("FATHOM_NODE_HOST"); v != "" {
		c.Node.Host = v
	}

	if v := os.Getenv("FATHOM_GOSSIP_BIND"); v != "" {
		c.Cluster.GossipBind = v
	}
	if v := os.Getenv("FATHOM_SEED_ADDRS"); v != "" {
		c.Cluster.SeedAddrs = strings.Split(v, ",")
	}
	if v := os.Getenv("FATHOM_GOSSIP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cluster.GossipInterval = d
		}
	}

	if v := os.Getenv("FATHOM_SEGMENT_DIR"); v != "" {
		c.Index.SegmentDir = v
	}
	if v := os.Getenv("FATHOM_CENTRALITY_DIR"); v != "" {
		c.Index.CentralityDir = v
	}
	if v := os.Getenv("FATHOM_ID2NODE_DIR"); v != "" {
		c.Index.ID2NodeDir = v
	}
	if v := os.Getenv("FATHOM_WAL_DIR"); v != "" {
		c.Index.WALDir = v
	}

	if v := os.Getenv("FATHOM_AMPC_NUM_SHARDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.AMPC.NumShards = n
		}
	}
	if v := os.Getenv("FATHOM_AMPC_ROUND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AMPC.RoundTimeout = d
		}
	}

	if v := os.Getenv("FATHOM_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("FATHOM_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("FATHOM_LOG_FORMAT"); v != "" {
		c.Server.LogFormat = v
	}
}

// serviceKinds maps a config-file service_kind string onto its
// schema.ServiceKind.
var serviceKinds = map[string]schema.ServiceKind{
	"searcher":                schema.ServiceSearcher,
	"api":                     schema.ServiceAPI,
	"webgraph":                schema.ServiceWebgraph,
	"dht":                     schema.ServiceDht,
	"live_index":              schema.ServiceLiveIndex,
	"harmonic_worker":         schema.ServiceHarmonicWorker,
	"approx_harmonic_worker":  schema.ServiceApproxHarmonicWorker,
	"shortest_path_worker":    schema.ServiceShortestPathWorker,
	"entity_searcher":         schema.ServiceEntitySearcher,
}

// Service builds the schema.Service this node advertises over gossip
// from its NodeConfig.
func (n NodeConfig) Service() (schema.Service, error) {
	kind, ok := serviceKinds[n.ServiceKind]
	if !ok {
		return schema.Service{}, fmt.Errorf("node.service_kind: unknown kind %q", n.ServiceKind)
	}
	return schema.Service{
		Kind:  kind,
		Host:  n.Host,
		Shard: schema.ShardID(n.Shard),
	}, nil
}

// Validate validates the configuration and returns an error if
// invalid.
func (c *Config) Validate() error {
	if _, ok := serviceKinds[c.Node.ServiceKind]; !ok {
		return fmt.Errorf("node.service_kind must be one of %s, got %q", strings.Join(knownServiceKinds(), ", "), c.Node.ServiceKind)
	}

	if _, err := c.Ranking.CoefficientTable(); err != nil {
		return err
	}
	if c.Ranking.SitePenalty < 0 || c.Ranking.TitlePenalty < 0 ||
		c.Ranking.URLPenalty < 0 || c.Ranking.URLWithoutTLDPenalty < 0 {
		return fmt.Errorf("ranking penalties must be non-negative")
	}
	if c.Ranking.MaxDocsConsidered == 0 {
		return fmt.Errorf("ranking.max_docs_considered must be positive")
	}

	if c.AMPC.NumShards == 0 {
		return fmt.Errorf("ampc.num_shards must be positive")
	}
	if c.AMPC.ReplicationFactor <= 0 {
		return fmt.Errorf("ampc.replication_factor must be positive")
	}
	if c.AMPC.RoundTimeout <= 0 {
		return fmt.Errorf("ampc.round_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Server.LogFormat)] {
		return fmt.Errorf("server.log_format must be 'json' or 'console', got %s", c.Server.LogFormat)
	}

	return nil
}

func knownServiceKinds() []string {
	names := make([]string, 0, len(serviceKinds))
	for name := range serviceKinds {
		names = append(names, name)
	}
	return names
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot finds the node's working root by walking up from
// startDir looking for fathom.yaml/fathom.yml, falling back to
// startDir itself if none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, "fathom.yaml")) ||
			fileExists(filepath.Join(currentDir, "fathom.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
