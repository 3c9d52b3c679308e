package main

import (
	"github/chapool/smart-wallet/cmd"
)

func main() {
	cmd.Execute()
}
