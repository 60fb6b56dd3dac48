// Package config loads the environment keys this module depends on:
// DATA_ROOT, INDEX_ROOT, API_KEYS, EMBED_ACCOUNT, EMBED_TOKEN,
// EMBED_MODEL, CACHE_BUDGET_BYTES. An optional .env file in the working
// directory is loaded first (joho/godotenv), then overridden by the
// real environment, matching the convention of loading local dev
// secrets without committing them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEmbedModel is used when EMBED_MODEL is unset.
const DefaultEmbedModel = "bge-m3"

// DefaultCacheBudgetBytes is used when CACHE_BUDGET_BYTES is unset or
// unparsable: 256MB, split across the footer/row-group/range caches.
const DefaultCacheBudgetBytes = 256 * 1000 * 1000

// Config is the resolved, validated environment for one process.
type Config struct {
	DataRoot         string
	IndexRoot        string
	APIKeys          []string
	EmbedAccount     string
	EmbedToken       string
	EmbedModel       string
	CacheBudgetBytes int64
}

// DirectEmbedCall reports whether EMBED_ACCOUNT/EMBED_TOKEN are present,
// selecting the direct-call path over the public gateway endpoint.
func (c Config) DirectEmbedCall() bool {
	return c.EmbedAccount != "" && c.EmbedToken != ""
}

// Load reads the process environment (after loading a best-effort .env
// file) into a validated Config. DATA_ROOT is required; every other key
// has a documented default.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local", ".env")

	dataRoot := os.Getenv("DATA_ROOT")
	if dataRoot == "" {
		return Config{}, fmt.Errorf("DATA_ROOT is required")
	}
	indexRoot := os.Getenv("INDEX_ROOT")
	if indexRoot == "" {
		indexRoot = strings.TrimRight(dataRoot, "/")
	}

	var keys []string
	if raw := os.Getenv("API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keys = append(keys, k)
			}
		}
	}

	embedModel := os.Getenv("EMBED_MODEL")
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}

	budget := int64(DefaultCacheBudgetBytes)
	if raw := os.Getenv("CACHE_BUDGET_BYTES"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			budget = v
		}
	}

	return Config{
		DataRoot:         dataRoot,
		IndexRoot:        indexRoot,
		APIKeys:          keys,
		EmbedAccount:     os.Getenv("EMBED_ACCOUNT"),
		EmbedToken:       os.Getenv("EMBED_TOKEN"),
		EmbedModel:       embedModel,
		CacheBudgetBytes: budget,
	}, nil
}

// ValidAPIKey reports whether key is among the configured API_KEYS.
// An empty configured set means no front end has wired authentication,
// in which case every key is accepted (a front end is responsible for
// refusing to boot without keys if it requires them).
func (c Config) ValidAPIKey(key string) bool {
	if len(c.APIKeys) == 0 {
		return true
	}
	for _, k := range c.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}
