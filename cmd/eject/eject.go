package eject

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/pipeline"
	"github/chapool/smart-wallet/internal/wallet/signer"
)

const (
	toFlag      = "to"
	valueFlag   = "value"
	dataFlag    = "data"
	nonceFlag   = "nonce"
	chainIDFlag = "chain-id"
	walletFlag  = "wallet"
	keyFlag     = "key"
)

// New returns the eject subcommand. It signs a single wallet transaction
// offline so funds can be moved even when the relayer is unavailable.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eject",
		Short: "Signs a wallet transaction without relaying it",
		Long: `Signs a single smart-wallet transaction offline and prints the
ready-to-submit calldata as JSON. No relayer or policy service is contacted.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runEject(cmd); err != nil {
				log.Error().Err(err).Msg("Failed to prepare ejection transaction")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().String(toFlag, "", "recipient address (required)")
	cmd.Flags().String(valueFlag, "", "value to transfer, decimal or 0x hex")
	cmd.Flags().String(dataFlag, "", "calldata as 0x hex")
	cmd.Flags().String(nonceFlag, "", "wallet nonce, decimal or 0x hex (required)")
	cmd.Flags().String(chainIDFlag, "", "chain id, decimal or 0x hex (required)")
	cmd.Flags().String(walletFlag, "", "smart wallet address (required)")
	cmd.Flags().String(keyFlag, "", "signer private key as hex (required)")

	return cmd
}

func runEject(cmd *cobra.Command) error {
	req, walletAddress, hexKey, err := parseFlags(cmd)
	if err != nil {
		return err
	}

	keySigner, err := signer.NewPrivateKeySigner(hexKey)
	if err != nil {
		return err
	}

	// Ejection never touches the relayer, guardian or chain.
	svc := pipeline.NewService(nil, nil, nil, pipeline.Config{})

	result, err := svc.PrepareEjectionTransaction(context.Background(), req, keySigner, walletAddress)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal ejection result")
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return nil
}

func parseFlags(cmd *cobra.Command) (*pipeline.EjectionRequest, common.Address, string, error) {
	req := &pipeline.EjectionRequest{}

	to, err := addressFlag(cmd, toFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	req.To = to

	walletAddressPtr, err := addressFlag(cmd, walletFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	if walletAddressPtr == nil {
		return nil, common.Address{}, "", errors.Errorf("--%s is required", walletFlag)
	}

	req.Value, err = bigFlag(cmd, valueFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	req.Nonce, err = bigFlag(cmd, nonceFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	req.ChainID, err = bigFlag(cmd, chainIDFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}

	data, err := cmd.Flags().GetString(dataFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	if data != "" {
		decoded, err := hexutil.Decode(data)
		if err != nil {
			return nil, common.Address{}, "", errors.Wrapf(err, "invalid --%s", dataFlag)
		}
		req.Data = decoded
	}

	hexKey, err := cmd.Flags().GetString(keyFlag)
	if err != nil {
		return nil, common.Address{}, "", err
	}
	if hexKey == "" {
		return nil, common.Address{}, "", errors.Errorf("--%s is required", keyFlag)
	}

	return req, *walletAddressPtr, hexKey, nil
}

func addressFlag(cmd *cobra.Command, name string) (*common.Address, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	if !common.IsHexAddress(raw) {
		return nil, errors.Errorf("invalid --%s address", name)
	}

	address := common.HexToAddress(raw)

	return &address, nil
}

func bigFlag(cmd *cobra.Command, name string) (*hexutil.Big, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	value, err := wallet.ParseBigInt(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid --%s", name)
	}

	return (*hexutil.Big)(value), nil
}
