package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"missionName": "Op Sandstorm",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "Op Sandstorm", viper.GetString("missionName"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./missionlogs", viper.GetString("logsDir"))
	assert.Equal(t, "Unnamed Operation", viper.GetString("missionName"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "missioncore", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./sessions", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, true, viper.GetBool("journal.enabled"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("monitor.interval"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("MISSIONCORE_LOGLEVEL", "warn")

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "warn", GetString("logLevel"))
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetOwnershipConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOwnershipConfig()
	assert.Equal(t, 1.0, cfg.Margin)
	assert.Equal(t, 10.0, cfg.DecayRate)
	assert.Equal(t, 50.0, cfg.MidValue)
	assert.Equal(t, "strength", cfg.WeightExpr)
	assert.Equal(t, core.Tick(30), cfg.ThreatCooldownTicks)
	assert.Equal(t, 4000.0, cfg.ThreatDistance["armor"])
}

func TestGetOwnershipConfig_PartialOverrideKeepsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"ownership": { "margin": 2.5, "weightExpr": "strength * 2" }
	}`)))

	cfg := GetOwnershipConfig()
	assert.Equal(t, 2.5, cfg.Margin)
	assert.Equal(t, "strength * 2", cfg.WeightExpr)
	assert.Equal(t, 10.0, cfg.DecayRate)
	assert.Equal(t, 50.0, cfg.MidValue)
}

func TestGetLogisticsConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetLogisticsConfig()
	assert.Equal(t, 1, cfg.InterdictionTicks)
	assert.Equal(t, 1.0, cfg.DecayRate)
	assert.Equal(t, 0.25, cfg.MinStrengthMultiplier)
	assert.True(t, cfg.Reinforcements)
}

func TestGetFireSupportConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"firesupport": { "fireDelayTicks": 5, "maxRange": 12000, "maxDesignationsPerFaction": 2 }
	}`)))

	cfg := GetFireSupportConfig()
	assert.Equal(t, core.Tick(5), cfg.FireDelayTicks)
	assert.Equal(t, core.Tick(3), cfg.TimeOfFlightTicks)
	assert.Equal(t, 12000.0, cfg.MaxRange)
	assert.Equal(t, 500.0, cfg.MinRange)
	assert.Equal(t, 2, cfg.MaxDesignationsPerFaction)
	assert.Equal(t, 4, cfg.DefaultRounds)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "./sessions", cfg.SQLite.DumpDir)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "missioncore:events", cfg.Redis.Channel)
	assert.Equal(t, "missioncore", cfg.Redis.KeyPrefix)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" },
			"websocket": { "url": "ws://recorder:5000/stream", "secret": "s3" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "ws://recorder:5000/stream", sc.Websocket.URL)
	assert.Equal(t, "s3", sc.Websocket.Secret)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetDBAndGeoConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"db": { "host": "db.internal", "password": "hunter2" },
		"geo": { "epsg": 32637, "falseEasting": 500000 }
	}`)))

	dc := GetDBConfig()
	assert.Equal(t, "db.internal", dc.Host)
	assert.Equal(t, "5432", dc.Port)
	assert.Equal(t, "host=db.internal port=5432 user=postgres password=hunter2 dbname=missioncore sslmode=disable", dc.DSN())

	gc := GetGeoConfig()
	assert.Equal(t, 32637, gc.EPSG)
	assert.Equal(t, 500000.0, gc.FalseEasting)
	assert.Equal(t, 0.0, gc.FalseNorthing)
}
