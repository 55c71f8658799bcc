// Package config loads and validates the YAML process configuration and
// the resource inventory file. Thresholds, gates, and cooldowns are read
// once per process lifetime; only the inventory file is watched for
// changes, and those land between scans.
package config
