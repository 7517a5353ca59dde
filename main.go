package main

import "github.com/frahmantamala/marketplace-payments/cmd"

func main() {
	cmd.Execute()
}
