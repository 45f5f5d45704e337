package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	sendURL     string
	sendKey     string
	sendNonce   uint64
	sendFee     uint64
	sendModule  uint32
	sendCommand uint32
	sendParams  string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign a transaction and submit it to the mempool of a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := signature.LoadKey(sendKey)
		if err != nil {
			return err
		}

		params, err := hexutil.Decode(sendParams)
		if err != nil {
			return fmt.Errorf("params: %w", err)
		}

		client := http.Client{Timeout: 10 * time.Second}

		st, err := fetchStatus(&client, sendURL)
		if err != nil {
			return err
		}

		networkID, err := hexutil.Decode(st.NetworkID)
		if err != nil {
			return fmt.Errorf("network id: %w", err)
		}

		tx := database.NewTransaction(database.TxData{
			ModuleID:        sendModule,
			CommandID:       sendCommand,
			SenderPublicKey: signature.PublicKey(privateKey),
			Nonce:           sendNonce,
			Fee:             sendFee,
			Params:          params,
		}).Sign(networkID, privateKey)

		data, err := tx.ToJSON()
		if err != nil {
			return err
		}

		resp, err := client.Post(sendURL+"/v1/tx/submit", "application/json", bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("transaction rejected: %s: %s", resp.Status, body)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "tx %s from %s accepted\n", hexutil.Encode(tx.ID()), tx.SenderAddress())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendURL, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&sendKey, "key", "k", "", "Path to the sender key.")
	sendCmd.Flags().Uint64VarP(&sendNonce, "nonce", "n", 0, "Nonce of the sender account.")
	sendCmd.Flags().Uint64VarP(&sendFee, "fee", "f", 0, "Fee paid to the generator.")
	sendCmd.Flags().Uint32VarP(&sendModule, "module", "m", 2, "Module id.")
	sendCmd.Flags().Uint32VarP(&sendCommand, "command", "c", 0, "Command id.")
	sendCmd.Flags().StringVarP(&sendParams, "params", "p", "0x", "Command params as 0x hex.")
	sendCmd.MarkFlagRequired("key")
}
