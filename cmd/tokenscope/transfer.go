package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenscope/internal/config"
	"tokenscope/internal/price"
	rpc "tokenscope/internal/solana"
	"tokenscope/internal/transfer"
	"tokenscope/internal/wallet"
)

func addWalletFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", config.DefaultRPCURL, "Solana JSON-RPC URL")
	cmd.Flags().String("keypair", "", "solana-keygen keypair file (default ~/.config/solana/id.json)")
	cmd.Flags().String("cluster", config.DefaultCluster, "cluster name for explorer links")
	cmd.Flags().String("price-url", config.DefaultPriceURL, "SOL/USD price endpoint")
	cmd.Flags().Bool("usd", false, "show USD conversion")
}

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send SOL from the local keypair",
		RunE:  runTransfer,
	}

	addWalletFlags(cmd)
	cmd.Flags().String("to", "", "destination address")
	cmd.Flags().String("amount", "", "amount in SOL")
	cmd.Flags().BoolP("yes", "y", false, "sign without asking for confirmation")

	return cmd
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the SOL balance of an address or the local keypair",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBalance,
	}
	addWalletFlags(cmd)
	return cmd
}

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Show the current SOL price in USD",
		RunE:  runPrice,
	}
	cmd.Flags().String("price-url", config.DefaultPriceURL, "SOL/USD price endpoint")
	return cmd
}

func runTransfer(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	to, _ := cmd.Flags().GetString("to")
	amount, _ := cmd.Flags().GetString("amount")
	yes, _ := cmd.Flags().GetBool("yes")
	showUSD, _ := cmd.Flags().GetBool("usd")

	var approver wallet.Approver = wallet.ApproveAll
	if !yes {
		approver = promptApprover(cmd.InOrStdin(), out)
	}

	kp, err := openWallet(ctx, cfg, logger, approver)
	if err != nil {
		return err
	}

	pipeline := transfer.NewPipeline(kp, transfer.WithLogger(logger))
	snap, err := pipeline.Refresh(ctx)
	if err != nil {
		logger.Warn("balance unavailable, skipping advisory check", zap.Error(err))
	}
	printWallet(out, snap)

	if showUSD {
		if usd, ok := a.quoteUSD(ctx, amount); ok {
			fmt.Fprintf(out, "Amount:  %s SOL (~$%s USD)\n", strings.TrimSpace(amount), usd)
		}
	}

	form := &transfer.Form{Amount: amount, Destination: to}
	outcome, err := pipeline.Submit(ctx, form)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Transfer successful: %s\n", outcome.Signature)
	fmt.Fprintf(out, "Explorer: %s\n", outcome.ExplorerURL(cfg.Cluster))
	if outcome.Balance.Valid {
		fmt.Fprintf(out, "Balance: %s SOL\n", outcome.Balance.Decimal.StringFixed(4))
		if showUSD {
			if usd, ok := a.quoteUSD(ctx, outcome.Balance.Decimal.String()); ok {
				fmt.Fprintf(out, "         ~$%s USD\n", usd)
			}
		}
	}
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var addr solana.PublicKey
	if len(args) == 1 {
		addr, err = transfer.ParseAddress(args[0])
		if err != nil {
			return err
		}
	} else {
		kp, err := openWallet(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		addr, _ = kp.Address()
	}

	client := rpc.NewHTTPClient(cfg.RPCURL)
	lamports, err := client.GetBalance(ctx, addr.String())
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}

	sol := transfer.LamportsToSOL(lamports)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s SOL\n", addr, sol.StringFixed(4))

	showUSD, _ := cmd.Flags().GetBool("usd")
	if showUSD {
		if usd, ok := a.quoteUSD(ctx, sol.String()); ok {
			fmt.Fprintf(out, "~$%s USD\n", usd)
		}
	}
	return nil
}

func runPrice(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quote, err := a.prices.USD(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "SOL: $%s USD\n", quote.StringFixed(2))
	return nil
}

func openWallet(ctx context.Context, cfg config.Config, logger *zap.Logger, approver wallet.Approver) (*wallet.Keypair, error) {
	path := cfg.Keypair
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve keypair path: %w", err)
		}
		path = filepath.Join(home, ".config", "solana", "id.json")
	}

	client := rpc.NewHTTPClient(cfg.RPCURL)
	kp, err := wallet.LoadKeypair(path, client,
		wallet.WithApprover(approver),
		wallet.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := kp.Connect(ctx); err != nil {
		return nil, err
	}
	return kp, nil
}

// quoteUSD converts amount SOL to USD. Any failure leaves the display
// absent.
func (a *app) quoteUSD(ctx context.Context, amount string) (string, bool) {
	sol, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", false
	}
	quote, err := a.prices.USD(ctx)
	if err != nil {
		a.logger.Debug("price unavailable", zap.Error(err))
		return "", false
	}
	return price.USDValue(sol, quote), true
}

func printWallet(out io.Writer, snap transfer.Snapshot) {
	if !snap.Connected || snap.Address == nil {
		fmt.Fprintln(out, "Wallet:  not connected")
		return
	}
	fmt.Fprintf(out, "Wallet:  %s\n", shortAddress(*snap.Address))
	if snap.Balance.Valid {
		fmt.Fprintf(out, "Balance: %s SOL\n", snap.Balance.Decimal.StringFixed(4))
	} else {
		fmt.Fprintln(out, "Balance: unknown")
	}
}

func shortAddress(key solana.PublicKey) string {
	s := key.String()
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "..." + s[len(s)-8:]
}

// promptApprover asks on out and reads y/N from in. EOF counts as no.
func promptApprover(in io.Reader, out io.Writer) wallet.Approver {
	reader := bufio.NewReader(in)
	return func(_ context.Context, s wallet.Summary) (bool, error) {
		for _, t := range s.Transfers {
			fmt.Fprintf(out, "Send %s SOL\n  from %s\n  to   %s\n",
				transfer.LamportsToSOL(t.Lamports).String(), t.From, t.To)
		}
		fmt.Fprintf(out, "Fee payer %s. Approve? [y/N] ", s.FeePayer)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
