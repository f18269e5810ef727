package main

import "github.com/oshokin/dockhand/cmd/dockhand-release/cmd"

func main() {
	cmd.Execute()
}
