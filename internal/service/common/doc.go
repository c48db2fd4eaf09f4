// Package common holds helpers shared by several services.
//
// It provides a small HTTP client with a bounded timeout, status checking,
// JSON decoding and durable downloads to disk.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
