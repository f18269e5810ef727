package main

import "github.com/oshokin/dockhand/cmd/dockhand-setup/cmd"

func main() {
	cmd.Execute()
}
