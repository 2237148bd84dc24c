package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/storage"
	"github.com/fowlengine/missioncore/internal/storage/memory"
	pgstorage "github.com/fowlengine/missioncore/internal/storage/postgres"
	redisstorage "github.com/fowlengine/missioncore/internal/storage/redis"
	sqlitestorage "github.com/fowlengine/missioncore/internal/storage/sqlite"
	wsstorage "github.com/fowlengine/missioncore/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		return pgstorage.New(config.GetDBConfig(), logger), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpDir:      storageCfg.SQLite.DumpDir,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil

	case "websocket":
		wsURL := storageCfg.Websocket.URL
		if wsURL == "" {
			wsURL = httpToWS(config.GetString("api.serverUrl")) + "/api/v1/stream"
		}
		secret := storageCfg.Websocket.Secret
		if secret == "" {
			secret = config.GetString("api.apiKey")
		}
		return wsstorage.New(wsstorage.Config{URL: wsURL, Secret: secret}, logger), nil

	case "redis":
		return redisstorage.New(storageCfg.Redis, logger), nil

	case "memory", "":
		return memory.New(storageCfg.Memory), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
