// Package session holds the state a front end works against: the loaded
// controller list, the discovered source sequences and their selection, and
// the configured export defaults. It builds the fseq codec, export engine
// and batch exporter from a config.Config and records runs in the history
// ledger when that is enabled.
package session
