// Package config loads procwarden configuration.
//
// Two kinds of configuration live here:
//
//   - AppSpec: the immutable description of the supervised application,
//     loaded once from a TOML file at startup.
//   - Daemon options: loaded with LoadConfig, which applies the precedence
//     CLI flags > PROCWARDEN_* environment variables > TOML config file.
package config
