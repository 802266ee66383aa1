// Package app provides the application service layer.
//
// Orchestrates the registration use case and the read-only series view. Sits
// between HTTP handlers and the series store; depends on domain interfaces,
// not concrete implementations.
package app
