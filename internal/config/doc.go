// Package config loads parley's YAML configuration: server endpoint, poll
// cadences, session defaults, cache location, and logging. ${VAR} references
// are expanded from the environment and duration fields accept Go duration
// strings ("2s", "1500ms").
package config
