package cmd

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
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
	forgeURL    string
	forgeKey    string
	forgeReward uint64
	forgeReveal string
)

// nodeStatus is the part of the node status document a forger needs.
type nodeStatus struct {
	NetworkID   string `json:"networkID"`
	Height      uint32 `json:"height"`
	BlockID     string `json:"blockID"`
	BlockTime   uint64 `json:"blockTime"`
	CurrentSlot uint64 `json:"currentSlot"`
}

// forgeCmd represents the forge command
var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge an empty block for the current slot and submit it",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := signature.LoadKey(forgeKey)
		if err != nil {
			return err
		}

		reveal, err := hexutil.Decode(forgeReveal)
		if err != nil {
			return fmt.Errorf("reveal: %w", err)
		}

		client := http.Client{Timeout: 10 * time.Second}

		st, err := fetchStatus(&client, forgeURL)
		if err != nil {
			return err
		}

		block, err := forgeBlock(st, privateKey, reveal)
		if err != nil {
			return err
		}

		data, err := block.ToJSON()
		if err != nil {
			return err
		}

		resp, err := client.Post(forgeURL+"/v1/blocks", "application/json", bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("block rejected: %s: %s", resp.Status, body)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "blk[%d] %s accepted\n", block.Height(), block.Header.IDHex())
		return nil
	},
}

func fetchStatus(client *http.Client, url string) (nodeStatus, error) {
	resp, err := client.Get(url + "/v1/node/status")
	if err != nil {
		return nodeStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nodeStatus{}, fmt.Errorf("node status: %s", resp.Status)
	}

	var st nodeStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nodeStatus{}, err
	}

	return st, nil
}

func forgeBlock(st nodeStatus, privateKey ed25519.PrivateKey, reveal []byte) (database.Block, error) {
	networkID, err := hexutil.Decode(st.NetworkID)
	if err != nil {
		return database.Block{}, fmt.Errorf("network id: %w", err)
	}

	prevID, err := hexutil.Decode(st.BlockID)
	if err != nil {
		return database.Block{}, fmt.Errorf("block id: %w", err)
	}

	publicKey := signature.PublicKey(privateKey)
	block := database.NewBlock(nil, nil, nil)

	header := database.NewBlockHeader(database.HeaderFields{
		Timestamp:         uint32(st.CurrentSlot * st.BlockTime),
		Height:            st.Height + 1,
		PreviousBlockID:   prevID,
		GeneratorAddress:  signature.AddressFromPublicKey(publicKey).Bytes(),
		TransactionRoot:   block.TransactionRoot(),
		AssetsRoot:        block.Assets.Root(),
		MaxHeightPrevoted: st.Height,
	}, database.ForgerExtension{
		GeneratorPublicKey: publicKey,
		Reward:             forgeReward,
		SeedReveal:         reveal,
	})

	block.Header = header.Sign(networkID, privateKey)
	return block, nil
}

func init() {
	rootCmd.AddCommand(forgeCmd)
	forgeCmd.Flags().StringVarP(&forgeURL, "url", "u", "http://localhost:8080", "Url of the node.")
	forgeCmd.Flags().StringVarP(&forgeKey, "key", "k", "validator.key", "Path to the validator key.")
	forgeCmd.Flags().Uint64VarP(&forgeReward, "reward", "r", 0, "Reward to claim.")
	forgeCmd.Flags().StringVar(&forgeReveal, "reveal", "0x00000000000000000000000000000000", "Seed reveal as 16 bytes of 0x hex.")
}
