// Package cli defines the Cobra command tree for the apm CLI. Each file
// in this package registers one top-level command (install, compile, tree,
// etc.) with the root command. Command implementations delegate to internal
// packages for resolution and compilation and only handle flag parsing,
// I/O formatting, and user interaction.
package cli
