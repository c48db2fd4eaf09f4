// Package checker decides whether a newer release of the updater is published.
//
// The remote manifest is a small JSON document. Any failure to fetch or parse
// it degrades to "no update" so the local flow always stays reachable.
package checker
