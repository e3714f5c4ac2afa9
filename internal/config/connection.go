package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ConnectionInfoFile is stored beside the executable.
const ConnectionInfoFile = "ConnectionInfo.json"

// ConnectionInfo is the agent's hub identity. DeviceID is generated once
// and kept across restarts.
type ConnectionInfo struct {
	DeviceID       string `json:"DeviceID"`
	Host           string `json:"Host"`
	OrganizationID string `json:"OrganizationID"`
}

// LoadConnectionInfo reads path. A missing file yields a zero value.
func LoadConnectionInfo(path string) (ConnectionInfo, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ConnectionInfo{}, nil
	}
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("config: read connection info: %w", err)
	}
	var info ConnectionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ConnectionInfo{}, fmt.Errorf("config: parse connection info %s: %w", path, err)
	}
	info.DeviceID = strings.TrimSpace(info.DeviceID)
	info.Host = strings.TrimRight(strings.TrimSpace(info.Host), "/")
	info.OrganizationID = strings.TrimSpace(info.OrganizationID)
	return info, nil
}

func SaveConnectionInfo(path string, info ConnectionInfo) error {
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: connection info dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("config: write connection info: %w", err)
	}
	return os.Rename(tmp, path)
}

// ResolveConnection merges the persisted identity with the hub config.
// Config values win; a device id is generated and saved when neither has
// one.
func ResolveConnection(path string, hub HubConfig) (ConnectionInfo, error) {
	info, err := LoadConnectionInfo(path)
	if err != nil {
		return ConnectionInfo{}, err
	}
	dirty := false
	if v := strings.TrimSpace(hub.ServerURL); v != "" && v != info.Host {
		info.Host = v
		dirty = true
	}
	if v := strings.TrimSpace(hub.OrganizationID); v != "" && v != info.OrganizationID {
		info.OrganizationID = v
		dirty = true
	}
	if v := strings.TrimSpace(hub.DeviceID); v != "" && v != info.DeviceID {
		info.DeviceID = v
		dirty = true
	}
	if info.DeviceID == "" {
		info.DeviceID = uuid.NewString()
		dirty = true
	}
	if dirty {
		if err := SaveConnectionInfo(path, info); err != nil {
			return info, err
		}
	}
	return info, nil
}
