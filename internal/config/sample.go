package config

// Sample is the commented config skeleton written by "tablodl config init".
const Sample = `# tablodl configuration.
# Every value can be overridden with a TABLODL_* environment variable
# (e.g. TABLODL_LOG_LEVEL=debug) or a command flag.

[devices]
# Static Tablo addresses. Leave empty to discover devices through the
# Tablo association server.
ips = []
discovery = true
timeout = "10s"

[paths]
data_dir = "~/.local/share/tablodl"
download_dir = "~/Videos/Tablo"

[sync]
concurrency = 4

[match]
# Minimum token similarity for a show title to match a query.
min_similarity = 0.5

[download]
timeout = "2h"
validate = true
min_size = "1MiB"
delete_originals = false

[upload]
# "putio" or "s3"
provider = "putio"
# dir defaults to paths.download_dir
dir = ""
concurrency = 2
newest_only = false
timeout = "1h"

[upload.putio]
token = ""
parent_folder = "Tablo"

[upload.s3]
bucket = ""
prefix = "tablo"
region = "us-east-1"
# Leave the keys empty to use the default AWS credential chain.
access_key_id = ""
secret_access_key = ""

[serve]
bind_address = "0.0.0.0:9091"
username = ""
password = ""
sync_interval = "6h"
# Shows downloaded automatically after each periodic sync.
follow = []
auto_upload = false

[cleanup]
# Local files already uploaded are removed after this long. "0s" disables.
retention = "0s"
interval = "1h"

[notify]
discord_webhook_url = ""
jellyfin_url = ""
jellyfin_token = ""

[telemetry]
enabled = false
exporter = "prometheus"
otlp_endpoint = "localhost:4317"

[log]
level = "info"
format = "json"
`
