package cmd

import (
	"log"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// transferCmd represents the transfer command.
var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move credits to another account",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		toID, err := database.ToAccountID(to)
		if err != nil {
			log.Fatal(err)
		}

		submitTx(privateKey, database.TxKindTransfer, "", toID, value)
	},
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	transferCmd.Flags().Uint16Var(&chainID, "chain", 1, "Chain id of the network.")
	transferCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	transferCmd.Flags().StringVarP(&to, "to", "t", "", "Account id to credit.")
	transferCmd.Flags().Float64VarP(&value, "value", "v", 0, "Credits to send.")
}
