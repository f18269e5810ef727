package main

import "github.com/oshokin/dockhand/cmd/dockhand-ctl/cmd"

func main() {
	cmd.Execute()
}
