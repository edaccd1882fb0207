package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/goCounter/credential"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// openKV returns the configured credential backend and its cleanup.
func openKV(cfg config, logger *slog.Logger) (credential.KV, func(), error) {
	switch strings.ToLower(cfg.Store) {
	case "memory":
		return credential.NewMemoryKV(), func() {}, nil

	case "file", "":
		path := cfg.StorePath
		if path == "" {
			def, err := credential.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = def
		}
		return credential.NewFileKV(path), func() {}, nil

	case "sqlite":
		path := cfg.StorePath
		if path == "" {
			def, err := credential.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(filepath.Dir(def), "credentials.db")
		}
		kv, err := credential.OpenSQLiteKV(path)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil

	case "redis":
		rdb, cleanup, err := openRedis(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return credential.NewRedisKV(rdb, cfg.RedisPrefix), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown store %q", errUsage, cfg.Store)
	}
}

// openRedis connects to cfg.RedisAddr, or to an embedded miniredis when it is
// empty.
func openRedis(cfg config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("no redis address; data will not outlive this process", "addr", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	cleanup := func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return rdb, cleanup, nil
}
