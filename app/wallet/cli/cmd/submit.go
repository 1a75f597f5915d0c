package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// Shared flags for the transaction commands.
var (
	url     string
	chainID uint16
	nonce   uint64
	itemID  string
	to      string
	value   float64
)

// submitTx signs the transaction with the wallet key and posts it to the
// public tx endpoint of the node.
func submitTx(privateKey *ecdsa.PrivateKey, kind database.TxKind, itemID string, toID database.AccountID, value float64) {
	userTx, err := database.NewUserTx(chainID, nonce, kind, itemID, toID, value)
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := userTx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(body))
}
