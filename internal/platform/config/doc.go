// Package config loads service configuration from the environment (and an
// optional .env file) and validates it before anything starts.
package config
