package main

import "github.com/baremetal-lab/metalboot/cmd/metalboot-lint/cmd"

func main() {
	cmd.Execute()
}
