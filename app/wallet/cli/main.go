package main

import "github.com/claimchain/claimchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
