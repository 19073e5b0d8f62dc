// Command fseqgen exports per-controller FSEQ sequences for SD-card based
// lighting controllers.
//
// Usage:
//
//	fseqgen files                      list the sequences in the show folder
//	fseqgen controllers                show the controllers and their channel blocks
//	fseqgen export --dest /media/sd    copy the selected sequences with one target
//	fseqgen fleet --dest /media/sd     export one file per controller and sequence
//	fseqgen info show.fseq             print a sequence header
//	fseqgen volumes [watch]            list writable volumes or log SD-card insertions
//	fseqgen update check|download      check for and fetch a newer release
//	fseqgen history [show <run>]       review past export runs
//	fseqgen config init|validate|show  manage the configuration file
package main
