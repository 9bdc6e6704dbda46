// Package internal contains the core implementation packages for marklet.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the marklet CLI tool.
//
// The internal packages are organized by functional domain:
//
//   - bookmarklet: javascript: URI bootstrap and index page rendering
//   - build: script discovery and artifact pipeline
//   - config: configuration management with validation
//   - ports: availability probing and fallback port negotiation
//   - protect: salted, stretched filename hashing
//   - registry: immutable source generations and change events
//   - server: HTTP delivery server with WebSocket reload support
//   - watcher: file system monitoring with debouncing
package internal
