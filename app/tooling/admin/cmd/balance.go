package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	balanceURL string
	balanceKey string
)

// accountStatus is the account document returned by the node.
type accountStatus struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance,string"`
	Nonce   uint64 `json:"nonce,string"`
}

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance and nonce of the account behind a key",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := signature.LoadKey(balanceKey)
		if err != nil {
			return err
		}
		address := signature.AddressFromPublicKey(signature.PublicKey(privateKey))

		client := http.Client{Timeout: 10 * time.Second}

		resp, err := client.Get(fmt.Sprintf("%s/v1/accounts/%s", balanceURL, address))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("account: %s", resp.Status)
		}

		var acct accountStatus
		if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "account %s: balance %d nonce %d\n", acct.Address, acct.Balance, acct.Nonce)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceURL, "url", "u", "http://localhost:8080", "Url of the node.")
	balanceCmd.Flags().StringVarP(&balanceKey, "key", "k", "", "Path to the account key.")
	balanceCmd.MarkFlagRequired("key")
}
