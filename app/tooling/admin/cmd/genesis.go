package cmd

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var (
	genesisFile string
	genesisOut  string
)

// genesisCmd represents the genesis command
var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Build the genesis block from the genesis file",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := genesis.Load(genesisFile)
		if err != nil {
			return err
		}

		block, err := gen.Block()
		if err != nil {
			return err
		}

		if err := genesis.SaveBlock(genesisOut, block); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "genesis block %s written to %s\n", block.Header.IDHex(), genesisOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genesisCmd)
	genesisCmd.Flags().StringVarP(&genesisFile, "file", "f", "zblock/genesis.json", "Path to the genesis file.")
	genesisCmd.Flags().StringVarP(&genesisOut, "out", "o", "zblock/genesis_block.json", "Path to write the genesis block to.")
}
