// Package config loads the two configuration layers spec §6 and §3
// describe: a process-level `key=value` file consumed once at startup, and
// the per-worker JSON configuration body (an array of `{cat,name,value}`
// triples) every module's Configuration row carries.
//
// The process-level loader generalises codepr-webcrawler/env's
// GetEnv/GetEnvAsInt pattern — read a value, fall back to a default — from
// os.Environ() to a parsed key=value file, since spec §6 configures a
// standalone binary from a file argument rather than from its environment.
package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/crawlserv/crawlservpp-sub001/internal/store"
)

// File is a parsed key=value configuration file.
type File struct {
	values map[string]string
}

// Load reads and parses path. Every non-blank, non-comment ('#') line must
// contain exactly one '=' (spec §6 "Exit non-zero on parse error").
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	f := &File{values: make(map[string]string)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: %s:%d: expected key=value", path, lineNo)
		}
		f.values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return f, nil
}

// Get mirrors env.GetEnv: the raw value for key, or defaultVal if unset.
func (f *File) Get(key, defaultVal string) string {
	if v, ok := f.values[key]; ok {
		return v
	}
	return defaultVal
}

// GetInt mirrors env.GetEnvAsInt.
func (f *File) GetInt(key string, defaultVal int) int {
	if v, ok := f.values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// GetUint16 parses a port-range value, falling back to defaultVal on a
// missing or out-of-range key.
func (f *File) GetUint16(key string, defaultVal uint16) uint16 {
	if v, ok := f.values[key]; ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			return uint16(n)
		}
	}
	return defaultVal
}

// GetBool reports a boolean key; a missing key defaults to false (spec §6
// "Missing booleans default to false"), overriding any defaultVal the
// caller passes for a value that isn't present.
func (f *File) GetBool(key string, defaultVal bool) bool {
	v, ok := f.values[key]
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// Server is the recognised server/database subset of spec §6's
// configuration file keys.
type Server struct {
	DBHost string
	DBPort uint16
	DBUser string
	DBName string

	ServerPort          uint16
	ServerAllow         []string
	ServerLogsDeletable bool
	ServerDataDeletable bool
}

// Server extracts the recognised server/database keys (spec §6: db_host,
// db_port, db_user, db_name, server_port, server_allow,
// server_logs_deletable, server_data_deletable).
func (f *File) Server() Server {
	var allow []string
	if raw := f.Get("server_allow", ""); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				allow = append(allow, a)
			}
		}
	}
	return Server{
		DBHost:              f.Get("db_host", "localhost"),
		DBPort:              f.GetUint16("db_port", 3306),
		DBUser:              f.Get("db_user", ""),
		DBName:              f.Get("db_name", ""),
		ServerPort:          f.GetUint16("server_port", 8080),
		ServerAllow:         allow,
		ServerLogsDeletable: f.GetBool("server_logs_deletable", false),
		ServerDataDeletable: f.GetBool("server_data_deletable", false),
	}
}

// configItemJSON is the wire shape of one entry in a Configuration body
// (spec §3 "array of {cat,name,value} triples").
type configItemJSON struct {
	Category string `json:"cat"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// ParseItems decodes a worker Configuration body into store.ConfigItems.
func ParseItems(body []byte) ([]store.ConfigItem, error) {
	var raw []configItemJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing configuration body: %w", err)
	}
	items := make([]store.ConfigItem, 0, len(raw))
	for _, it := range raw {
		items = append(items, store.ConfigItem{Category: it.Category, Name: it.Name, Value: it.Value})
	}
	return items, nil
}

// EncodeItems is ParseItems' inverse, used to echo a Configuration body
// back to the control endpoint's caller.
func EncodeItems(items []store.ConfigItem) ([]byte, error) {
	raw := make([]configItemJSON, 0, len(items))
	for _, it := range items {
		raw = append(raw, configItemJSON{Category: it.Category, Name: it.Name, Value: it.Value})
	}
	return json.Marshal(raw)
}
