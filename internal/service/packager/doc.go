// Package packager turns a release directory into the artifacts the updater consumes.
//
// It zips the directory into the update package and writes the JSON manifest
// announcing the version and the package address. Both files are then
// uploaded to the update server.
package packager
