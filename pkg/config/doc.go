// Package config loads the server configuration from layered sources.
//
// # Precedence
//
// Later sources override earlier ones:
//
//	built-in defaults
//	  └─▶ YAML file (--config)
//	        └─▶ .env file in the working directory
//	              └─▶ CYBERGYM_* environment variables
//	                    └─▶ command-line flags (applied by cmd)
//
// The .env file only fills variables not already exported, so a real
// environment variable always beats it. Flags are layered last by the
// command layer, and only the flags actually set on the command line.
//
// # Fields
//
// Every field is reachable by all sources: the yaml tag names the file
// key, the env tag (with the CYBERGYM_ prefix) names the variable.
// Timeout fields are plain seconds.
package config
