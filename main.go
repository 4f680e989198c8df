package main

import (
	"github.com/copperbear/storefront/cmd"
)

func main() {
	cmd.Start()
}
