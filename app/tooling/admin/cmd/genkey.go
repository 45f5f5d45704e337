package cmd

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var genkeyOut string

// genkeyCmd represents the genkey command
var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a new validator key",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := signature.GenerateKey()
		if err != nil {
			return err
		}

		if err := signature.SaveKey(genkeyOut, privateKey); err != nil {
			return err
		}

		publicKey := signature.PublicKey(privateKey)
		fmt.Fprintf(cmd.OutOrStdout(), "key:       %s\n", genkeyOut)
		fmt.Fprintf(cmd.OutOrStdout(), "publicKey: %s\n", hexutil.Encode(publicKey))
		fmt.Fprintf(cmd.OutOrStdout(), "address:   %s\n", signature.AddressFromPublicKey(publicKey).Hex())

		return nil
	},
}

// addressCmd represents the address command
var addressCmd = &cobra.Command{
	Use:   "address <keyfile>",
	Short: "Print the address for a validator key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := signature.LoadKey(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), signature.AddressFromPublicKey(signature.PublicKey(privateKey)).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
	rootCmd.AddCommand(addressCmd)
	genkeyCmd.Flags().StringVarP(&genkeyOut, "out", "o", "validator.key", "Path to write the key to.")
}
