package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Daily Stock Analysis - Intraday Watcher Configuration

[watchlist]
# Symbols evaluated at every checkpoint (e.g. "sh600519", "sz000001")
symbols = []

[schedule]
# Checkpoints in "HH:MM", strictly ascending
checkpoints = ["09:30", "13:00", "14:45"]
# IANA timezone the checkpoints are expressed in
timezone = "Asia/Shanghai"
# Log an hourly heartbeat with the next run time
heartbeat = true
heartbeat_interval = "1h"

[calendar]
# Holiday mode: "simple" (weekdays) or "advanced" (weekdays minus holiday table)
holiday_mode = "simple"
# YAML holiday table used in advanced mode
holiday_file = ""
# Continuous trading windows, both ends inclusive
sessions = ["09:30-11:30", "13:00-15:00"]

[fetcher]
# Quote sources in priority order: tencent, sina, kite, paper
sources = ["tencent", "sina"]
# Per-source request timeout
timeout = "10s"
# Randomized spacing between live calls to the same source
jitter_min = "2s"
jitter_max = "3s"
# Skip a source after this many consecutive failures (0 disables)
breaker_threshold = 0
breaker_cooldown = "5m"

[cache]
# Quote cache backend: "memory" or "redis"
backend = "memory"
ttl = "10m"
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0
key_prefix = "intraday:quote:"

[indicators]
rsi_period = 12
# Prior sessions averaged for the volume baseline
baseline_sessions = 5
# Minutes either side of the current time of day
baseline_window = 5
# Prior sessions loaded to seed the price series
history_sessions = 30

[scoring]
# Score bands: >= strong_buy, >= buy, <= sell, <= strong_sell
strong_buy = 80
buy = 65
sell = 35
strong_sell = 20

[filter]
# Minimum score for a whitelisted action to be notified
score_threshold = 60
action_whitelist = ["STRONG_BUY", "BUY", "STRONG_SELL"]
# Volume ratio above which a signal is always considered
volume_anomaly = 3.0
# Minimum interval between two notifications of the same symbol and action
cooldown = "30m"
# Dedup reset policy: "none", "session" or "max_age"
reset_policy = "max_age"
max_age = "24h"

[pipeline]
max_concurrency = 3
# Evaluate signals without dispatching notifications
dry_run = false

[store]
enabled = true
# Defaults to intraday.db in the config directory
path = ""

[metrics]
enabled = false
addr = ":9090"

[logging]
level = "info"
console = true
file = true

[notifications]
enabled = true
# Write accepted signals to the log
log = true

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from = ""
to = ""
`

const credentialsTemplate = `# Daily Stock Analysis Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return writeCredentialsTemplate(configDir)
}

// writeCredentialsTemplate writes an empty credentials file with restricted
// permissions unless one already exists.
func writeCredentialsTemplate(configDir string) error {
	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
