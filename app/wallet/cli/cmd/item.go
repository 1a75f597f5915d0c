package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

type itemRecord struct {
	ItemID     string  `json:"item_id"`
	Reserved   bool    `json:"reserved"`
	HolderID   string  `json:"holder_id"`
	HolderName string  `json:"holder_name"`
	Value      float64 `json:"value"`
	Demand     int     `json:"demand"`
	Escrow     float64 `json:"escrow"`
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Print the reservation record for an item.",
	Run:   itemRun,
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	itemCmd.Flags().StringVarP(&itemID, "item", "i", "", "Id of the item.")
}

func itemRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/items/list/%s", url, itemID))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var items []itemRecord
	if err := decoder.Decode(&items); err != nil {
		log.Fatal(err)
	}

	for _, item := range items {
		fmt.Printf("item[%s] reserved[%v] holder[%s] value[%.2f] demand[%d] escrow[%.2f]\n",
			item.ItemID, item.Reserved, item.HolderName, item.Value, item.Demand, item.Escrow)
	}
}
