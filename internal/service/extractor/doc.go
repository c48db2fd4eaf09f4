// Package extractor applies a zip release package onto an installation directory.
//
// Entries are written one at a time in archive order. Every file is deleted
// before it is rewritten, files held open by another process are skipped, and
// a failing entry never aborts the rest of the run. Progress is reported after
// each extracted file and once more at 100% when the run is over.
package extractor
