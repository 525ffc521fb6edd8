package main

import "github.com/baremetal-lab/metalboot/cmd/metalboot-uefi/cmd"

func main() {
	cmd.Execute()
}
