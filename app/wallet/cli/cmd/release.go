package cmd

import (
	"log"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// releaseCmd represents the release command.
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release an item you hold and collect its value",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		submitTx(privateKey, database.TxKindRelease, itemID, "", 0)
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
	releaseCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	releaseCmd.Flags().Uint16Var(&chainID, "chain", 1, "Chain id of the network.")
	releaseCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	releaseCmd.Flags().StringVarP(&itemID, "item", "i", "", "Id of the item to release.")
}
