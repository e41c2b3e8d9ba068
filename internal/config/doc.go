// Package config loads service configuration from the environment with an
// optional .env overlay, and resolves OS-appropriate default paths.
package config
