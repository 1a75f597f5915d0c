package cmd

import (
	"log"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// buyoutCmd represents the buyout command.
var buyoutCmd = &cobra.Command{
	Use:   "buyout",
	Short: "Pay the current holder of an item directly",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		toID, err := database.ToAccountID(to)
		if err != nil {
			log.Fatal(err)
		}

		submitTx(privateKey, database.TxKindBuyout, itemID, toID, value)
	},
}

func init() {
	rootCmd.AddCommand(buyoutCmd)
	buyoutCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	buyoutCmd.Flags().Uint16Var(&chainID, "chain", 1, "Chain id of the network.")
	buyoutCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	buyoutCmd.Flags().StringVarP(&itemID, "item", "i", "", "Id of the item the payment is for.")
	buyoutCmd.Flags().StringVarP(&to, "to", "t", "", "Account id of the holder.")
	buyoutCmd.Flags().Float64VarP(&value, "value", "v", 0, "Credits to pay.")
}
