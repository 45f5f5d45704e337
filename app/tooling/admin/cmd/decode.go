package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var decodeType string

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a canonical encoding into JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := hexutil.Decode(args[0])
		if err != nil {
			return err
		}

		var data []byte
		switch decodeType {
		case "block":
			block, err := database.DecodeBlock(b)
			if err != nil {
				return err
			}
			data, err = block.ToJSON()
			if err != nil {
				return err
			}

		case "header":
			header, err := database.DecodeBlockHeader(b)
			if err != nil {
				return err
			}
			data, err = header.ToJSON()
			if err != nil {
				return err
			}

		case "tx":
			tx, err := database.DecodeTransaction(b)
			if err != nil {
				return err
			}
			data, err = tx.ToJSON()
			if err != nil {
				return err
			}

		default:
			schema, exists := codec.Lookup(decodeType)
			if !exists {
				return fmt.Errorf("unknown type %q, must be block, header, tx or one of: %s", decodeType, strings.Join(codec.Registered(), ", "))
			}
			rec, err := schema.Decode(b)
			if err != nil {
				return err
			}
			data, err = schema.ToJSON(rec)
			if err != nil {
				return err
			}
		}

		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeType, "type", "t", "block", "Type to decode: block, header, tx or any registered schema id.")
}
