// Package launcher starts the main application and keeps the updater alive for a while afterwards.
package launcher
