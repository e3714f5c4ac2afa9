package config

import (
	"fmt"
	"os"
)

func Template() string {
	return agentTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(agentTemplate), 0o600)
}

const agentTemplate = `[agent]
component = "agentctl"
log_level = "info"
# log_dir = "/var/log/agentctl"
# app_dir = ""

[hub]
server_url = "https://hub.example.com"
organization_id = ""
# device_id is generated on first start and stored in ConnectionInfo.json
heartbeat = "1m"
backoff_initial = "1s"
backoff_max = "1m"
# socks_proxy = "127.0.0.1:1080"
# ca_file = "/etc/agentctl/hub-ca.pem"

[updater]
# manifest_url = "https://hub.example.com/api/agent/manifest.json"
schedule = "@every 6h"
staging_dir = "update"

[sampler]
interval = "5s"

[status]
# listen_addr = "127.0.0.1:9464"
# token = ""
`
