// Package cachefix provides an in-process Redis fixture.
//
// It pairs a miniredis server with a go-redis client and seeds both plain
// keys and hashes from a strict-YAML fixture file. TTL behavior is testable
// without waiting: FastForward advances miniredis's virtual clock.
package cachefix

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Fixture is a running miniredis with a connected client.
type Fixture struct {
	server *miniredis.Miniredis
	client *redis.Client
}

// SeedFile is the on-disk cache fixture format:
//
//	keys:
//	  - key: "session:42"
//	    value: alice
//	    ttl: 10m
//	hashes:
//	  - key: "user:42"
//	    fields:
//	      name: alice
//	      plan: pro
type SeedFile struct {
	Keys   []KeyEntry  `yaml:"keys,omitempty"`
	Hashes []HashEntry `yaml:"hashes,omitempty"`
}

// KeyEntry seeds a plain string key, with an optional TTL.
type KeyEntry struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
	TTL   string `yaml:"ttl,omitempty"`
}

// HashEntry seeds a hash key.
type HashEntry struct {
	Key    string            `yaml:"key"`
	Fields map[string]string `yaml:"fields"`
}

// ForT starts a fixture scoped to the test. Server and client are torn
// down automatically.
func ForT(t *testing.T) *Fixture {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return &Fixture{server: server, client: client}
}

// Client returns the connected go-redis client.
func (f *Fixture) Client() *redis.Client {
	return f.client
}

// Addr returns the miniredis listen address, for code under test that
// builds its own client.
func (f *Fixture) Addr() string {
	return f.server.Addr()
}

// Load parses and applies a YAML fixture file.
func (f *Fixture) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cache fixture: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return fmt.Errorf("invalid cache fixture %s: %w", path, err)
	}
	return f.Seed(seed)
}

// ParseSeed parses fixture YAML with strict field validation.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(seed.Keys) == 0 && len(seed.Hashes) == 0 {
		return nil, fmt.Errorf("fixture must seed at least one key or hash")
	}
	for i, k := range seed.Keys {
		if k.Key == "" {
			return nil, fmt.Errorf("keys[%d]: key is required", i)
		}
		if k.TTL != "" {
			if _, err := time.ParseDuration(k.TTL); err != nil {
				return nil, fmt.Errorf("keys[%d] (%s): invalid ttl %q: %w", i, k.Key, k.TTL, err)
			}
		}
	}
	for i, h := range seed.Hashes {
		if h.Key == "" {
			return nil, fmt.Errorf("hashes[%d]: key is required", i)
		}
		if len(h.Fields) == 0 {
			return nil, fmt.Errorf("hashes[%d] (%s): fields is required", i, h.Key)
		}
	}
	return &seed, nil
}

// Seed applies a parsed fixture directly to the miniredis server.
func (f *Fixture) Seed(seed *SeedFile) error {
	for _, k := range seed.Keys {
		if err := f.server.Set(k.Key, k.Value); err != nil {
			return fmt.Errorf("seed key %s: %w", k.Key, err)
		}
		if k.TTL != "" {
			ttl, err := time.ParseDuration(k.TTL)
			if err != nil {
				return fmt.Errorf("seed key %s: invalid ttl: %w", k.Key, err)
			}
			f.server.SetTTL(k.Key, ttl)
		}
	}
	for _, h := range seed.Hashes {
		for field, value := range h.Fields {
			f.server.HSet(h.Key, field, value)
		}
	}
	return nil
}

// FastForward advances miniredis's virtual clock, expiring TTLs that fall
// due. Real time does not pass.
func (f *Fixture) FastForward(d time.Duration) {
	f.server.FastForward(d)
}
