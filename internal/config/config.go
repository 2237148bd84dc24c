package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "missioncore.cfg.json"

// OwnershipConfig tunes the zone capture state machine.
type OwnershipConfig struct {
	Margin              float64            `json:"margin" mapstructure:"margin"`
	DecayRate           float64            `json:"decayRate" mapstructure:"decayRate"`
	MidValue            float64            `json:"midValue" mapstructure:"midValue"`
	WeightExpr          string             `json:"weightExpr" mapstructure:"weightExpr"`
	ThreatDistance      map[string]float64 `json:"threatDistance" mapstructure:"threatDistance"`
	ThreatCooldownTicks core.Tick          `json:"threatCooldownTicks" mapstructure:"threatCooldownTicks"`
}

// LogisticsConfig tunes the supply graph.
type LogisticsConfig struct {
	InterdictionTicks     int     `json:"interdictionTicks" mapstructure:"interdictionTicks"`
	DecayRate             float64 `json:"decayRate" mapstructure:"decayRate"`
	MinStrengthMultiplier float64 `json:"minStrengthMultiplier" mapstructure:"minStrengthMultiplier"`
	Reinforcements        bool    `json:"reinforcements" mapstructure:"reinforcements"`
}

// FireSupportConfig tunes designation and fire-mission handling.
type FireSupportConfig struct {
	AmmoPerRound              float64   `json:"ammoPerRound" mapstructure:"ammoPerRound"`
	DefaultRounds             int       `json:"defaultRounds" mapstructure:"defaultRounds"`
	MaxRounds                 int       `json:"maxRounds" mapstructure:"maxRounds"`
	FireDelayTicks            core.Tick `json:"fireDelayTicks" mapstructure:"fireDelayTicks"`
	TimeOfFlightTicks         core.Tick `json:"timeOfFlightTicks" mapstructure:"timeOfFlightTicks"`
	MinRange                  float64   `json:"minRange" mapstructure:"minRange"`
	MaxRange                  float64   `json:"maxRange" mapstructure:"maxRange"`
	MaxMissionsPerZone        int       `json:"maxMissionsPerZone" mapstructure:"maxMissionsPerZone"`
	MaxDesignationsPerFaction int       `json:"maxDesignationsPerFaction" mapstructure:"maxDesignationsPerFaction"`
	MaxTTL                    core.Tick `json:"maxTTL" mapstructure:"maxTTL"`
	MaxPriority               int       `json:"maxPriority" mapstructure:"maxPriority"`
}

// VictoryConfig holds the end-of-mission condition.
type VictoryConfig struct {
	MapOwnedFraction float64 `json:"mapOwnedFraction" mapstructure:"mapOwnedFraction"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory SQLite backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpDir      string        `json:"dumpDir" mapstructure:"dumpDir"`
}

// WebsocketConfig holds the streaming backend settings.
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN renders the connection string for the postgres driver.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// RedisConfig holds the live-state backend settings.
type RedisConfig struct {
	URL       string `json:"url" mapstructure:"url"`
	KeyPrefix string `json:"keyPrefix" mapstructure:"keyPrefix"`
	Channel   string `json:"channel" mapstructure:"channel"`
}

// GeoConfig maps the host's flat grid to a projected CRS. EPSG 0 disables
// lat/lon output.
type GeoConfig struct {
	EPSG          int     `json:"epsg" mapstructure:"epsg"`
	FalseEasting  float64 `json:"falseEasting" mapstructure:"falseEasting"`
	FalseNorthing float64 `json:"falseNorthing" mapstructure:"falseNorthing"`
}

// JournalConfig controls the replay journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("MISSIONCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./missionlogs")
	viper.SetDefault("missionName", "Unnamed Operation")
	viper.SetDefault("layoutPath", "./layout.yaml")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadTag", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "missioncore")
	viper.SetDefault("db.timescale", false)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "missioncore-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.redis.url", "redis://localhost:6379/0")
	viper.SetDefault("storage.redis.keyPrefix", "missioncore")
	viper.SetDefault("storage.redis.channel", "missioncore:events")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpDir", "./sessions")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "missioncore")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.epsg", 0)
	viper.SetDefault("geo.falseEasting", 0.0)
	viper.SetDefault("geo.falseNorthing", 0.0)

	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.dir", "./journals")

	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("ownership.margin", 1.0)
	viper.SetDefault("ownership.decayRate", 10.0)
	viper.SetDefault("ownership.midValue", 50.0)
	viper.SetDefault("ownership.weightExpr", "strength")
	viper.SetDefault("ownership.threatDistance", map[string]float64{
		"infantry":  1500,
		"armor":     4000,
		"artillery": 6000,
		"logistics": 0,
		"jtac":      1000,
	})
	viper.SetDefault("ownership.threatCooldownTicks", 30)

	viper.SetDefault("logistics.interdictionTicks", 1)
	viper.SetDefault("logistics.decayRate", 1.0)
	viper.SetDefault("logistics.minStrengthMultiplier", 0.25)
	viper.SetDefault("logistics.reinforcements", true)

	viper.SetDefault("firesupport.ammoPerRound", 1.0)
	viper.SetDefault("firesupport.defaultRounds", 4)
	viper.SetDefault("firesupport.maxRounds", 12)
	viper.SetDefault("firesupport.fireDelayTicks", 2)
	viper.SetDefault("firesupport.timeOfFlightTicks", 3)
	viper.SetDefault("firesupport.minRange", 500.0)
	viper.SetDefault("firesupport.maxRange", 20000.0)
	viper.SetDefault("firesupport.maxMissionsPerZone", 4)
	viper.SetDefault("firesupport.maxDesignationsPerFaction", 8)
	viper.SetDefault("firesupport.maxTTL", 600)
	viper.SetDefault("firesupport.maxPriority", 10)

	viper.SetDefault("victory.mapOwnedFraction", 0.0)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// unmarshalKey decodes one config section. AllSettings merges defaults, file
// values and env overrides leaf by leaf, which UnmarshalKey does not.
func unmarshalKey[T any](key string) T {
	var out T
	section, ok := viper.AllSettings()[strings.ToLower(key)].(map[string]any)
	if !ok {
		return out
	}
	v := viper.New()
	if err := v.MergeConfigMap(section); err != nil {
		return out
	}
	_ = v.Unmarshal(&out)
	return out
}

// GetOwnershipConfig returns the ownership tuning.
func GetOwnershipConfig() OwnershipConfig {
	return unmarshalKey[OwnershipConfig]("ownership")
}

// GetLogisticsConfig returns the logistics tuning.
func GetLogisticsConfig() LogisticsConfig {
	return unmarshalKey[LogisticsConfig]("logistics")
}

// GetFireSupportConfig returns the fire-support tuning.
func GetFireSupportConfig() FireSupportConfig {
	return unmarshalKey[FireSupportConfig]("firesupport")
}

// GetVictoryConfig returns the victory condition.
func GetVictoryConfig() VictoryConfig {
	return unmarshalKey[VictoryConfig]("victory")
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return unmarshalKey[StorageConfig]("storage")
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return unmarshalKey[OTelConfig]("otel")
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return unmarshalKey[InfluxConfig]("influx")
}

// GetGraylogConfig returns the GELF output settings.
func GetGraylogConfig() GraylogConfig {
	return unmarshalKey[GraylogConfig]("graylog")
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return unmarshalKey[DBConfig]("db")
}

// GetGeoConfig returns the grid projection settings.
func GetGeoConfig() GeoConfig {
	return unmarshalKey[GeoConfig]("geo")
}

// GetJournalConfig returns the replay journal settings.
func GetJournalConfig() JournalConfig {
	return unmarshalKey[JournalConfig]("journal")
}
