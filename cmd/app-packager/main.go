package main

import "github.com/oshokin/app-updater/cmd/app-packager/cmd"

func main() {
	cmd.Execute()
}
