// Package config loads, normalizes, and validates fseqgen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FSEQGEN_OUTPUT_DIR and GITHUB_TOKEN. The Config type carries every knob the
// CLI needs: where sequences and the controller topology live, how exported
// files are encoded, and where logs and the export history are kept.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical export settings, and clear validation errors.
package config
