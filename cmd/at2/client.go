package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/rpc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	clientRPC      string
	clientDecimals uint
	clientTimeout  time.Duration

	sendKey      string
	sendTo       string
	sendAmount   string
	sendSequence uint32
)

func init() {
	for _, cmd := range []*cobra.Command{sendCmd, balanceCmd, sequenceCmd, latestCmd} {
		cmd.Flags().StringVar(&clientRPC, "rpc", "http://127.0.0.1:8080", "rpc address of the node")
		cmd.Flags().UintVar(&clientDecimals, "decimals", 0, "decimals used to display and parse amounts")
		cmd.Flags().DurationVar(&clientTimeout, "timeout", 10*time.Second, "time to wait for the node")
		rootCmd.AddCommand(cmd)
	}

	sendCmd.Flags().StringVar(&sendKey, "key", "", "hex encoded seed of the sender")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "hex encoded public key of the recipient")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "amount to send")
	sendCmd.Flags().Uint32Var(&sendSequence, "sequence", 0, "sequence of the claim, by default the one after the last applied")
	sendCmd.MarkFlagRequired("key")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func clientCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), clientTimeout)
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an amount to another account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		seed, err := hex.DecodeString(sendKey)
		if err != nil {
			return errors.Wrap(err, "invalid key")
		}

		idn, err := ledger.IdentityFromSeed(seed)
		if err != nil {
			return err
		}

		to, err := ledger.ParsePK(sendTo)
		if err != nil {
			return errors.Wrap(err, "invalid recipient")
		}

		amount, err := ParseAmount(sendAmount, clientDecimals)
		if err != nil {
			return err
		}

		ctx, cancel := clientCtx()
		defer cancel()

		c := rpc.NewClient(clientRPC, nil)
		seq := sendSequence
		if seq == 0 {
			last, err := c.GetLastSequence(ctx, idn.PK())
			if err != nil {
				return err
			}

			seq = last + 1
		}

		err = c.SendAsset(ctx, idn, seq, to, amount)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "submitted claim with sequence %d\n", seq)
		return err
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <public-key>",
	Short: "Show the balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := ledger.ParsePK(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := clientCtx()
		defer cancel()

		amount, err := rpc.NewClient(clientRPC, nil).GetBalance(ctx, id)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), FormatAmount(amount, clientDecimals))
		return err
	},
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence <public-key>",
	Short: "Show the last applied sequence of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		id, err := ledger.ParsePK(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := clientCtx()
		defer cancel()

		seq, err := rpc.NewClient(clientRPC, nil).GetLastSequence(ctx, id)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), seq)
		return err
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently processed transactions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := clientCtx()
		defer cancel()

		txs, err := rpc.NewClient(clientRPC, nil).GetLatestTransactions(ctx)
		if err != nil {
			return err
		}

		for _, tx := range txs {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s %s\n",
				tx.Timestamp.Format(time.RFC3339), tx.Sender.Hex(), tx.Recipient.Hex(), FormatAmount(tx.Amount, clientDecimals))
			if err != nil {
				return err
			}
		}

		return nil
	},
}
