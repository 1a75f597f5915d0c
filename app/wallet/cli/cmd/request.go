package cmd

import (
	"log"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// requestCmd represents the request command.
var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request the reservation of an item",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		submitTx(privateKey, database.TxKindRequest, itemID, "", 0)
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	requestCmd.Flags().Uint16Var(&chainID, "chain", 1, "Chain id of the network.")
	requestCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	requestCmd.Flags().StringVarP(&itemID, "item", "i", "", "Id of the item to request.")
}
