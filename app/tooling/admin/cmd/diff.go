package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/diff"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	diffFrom string
	diffTo   string
)

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Print the edit script between two hex buffers",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := hexutil.Decode(diffFrom)
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}

		to, err := hexutil.Decode(diffTo)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}

		script := diff.Calculate(from, to)

		undone, err := diff.Undo(to, script)
		if err != nil {
			return err
		}
		if !bytes.Equal(undone, from) {
			return errors.New("edit script does not undo to the initial buffer")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "script:  %s\n", script)
		fmt.Fprintf(cmd.OutOrStdout(), "encoded: %s\n", hexutil.Encode(script.Encode()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVar(&diffFrom, "from", "0x", "Initial buffer as 0x hex.")
	diffCmd.Flags().StringVar(&diffTo, "to", "0x", "Final buffer as 0x hex.")
}
