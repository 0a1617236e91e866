package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledger/internal/app/ledger"
)

func newOpenAccountCommand(factory ServiceFactory, opts *globalOptions) *cobra.Command {
	var opening string
	cmd := &cobra.Command{
		Use:   "open-account",
		Short: "Provision a new account; its credential comes from $LEDGER_CREDENTIAL or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			amount, err := parseAmount(opening)
			if err != nil {
				return err
			}
			cred, err := opts.secret(cmd, credentialEnv, "credential")
			if err != nil {
				return err
			}
			svc, release, err := factory(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			account, err := svc.Provision(cmd.Context(), opts.account, cred, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened account %s with balance %s\n",
				account.ID, account.Balance.StringFixed(svc.CurrencyScale()))
			return nil
		},
	}
	cmd.Flags().StringVar(&opening, "opening-balance", "0", "initial balance")
	return cmd
}

func newBalanceCommand(factory ServiceFactory, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, factory, opts, func(_ context.Context, svc LedgerService, engine *ledger.Engine, _ string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s\n", engine.Balance().StringFixed(svc.CurrencyScale()))
				return nil
			})
		},
	}
}

type amountOp func(*ledger.Engine, context.Context, decimal.Decimal) (decimal.Decimal, error)

func newAmountCommand(factory ServiceFactory, opts *globalOptions, use, short, verb string, op amountOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, factory, opts, func(ctx context.Context, svc LedgerService, engine *ledger.Engine, _ string) error {
				balance, err := op(engine, ctx, amount)
				if err != nil {
					return err
				}
				scale := svc.CurrencyScale()
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s. Balance: %s\n", verb, amount.StringFixed(scale), balance.StringFixed(scale))
				return nil
			})
		},
	}
}

func newTransferCommand(factory ServiceFactory, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <amount> <recipient>",
		Short: "Move funds to another account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			recipient := args[1]
			return withSession(cmd, factory, opts, func(ctx context.Context, svc LedgerService, engine *ledger.Engine, _ string) error {
				balance, err := engine.Transfer(ctx, amount, recipient)
				if err != nil {
					return err
				}
				scale := svc.CurrencyScale()
				fmt.Fprintf(cmd.OutOrStdout(), "Transferred %s to %s. Balance: %s\n",
					amount.StringFixed(scale), recipient, balance.StringFixed(scale))
				return nil
			})
		},
	}
}

func newChangeCredentialCommand(factory ServiceFactory, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "change-credential",
		Short: "Replace the account credential; the new one comes from $" + newCredentialEnv + " or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, factory, opts, func(ctx context.Context, _ LedgerService, engine *ledger.Engine, cred string) error {
				newCred, err := opts.secret(cmd, newCredentialEnv, "new credential")
				if err != nil {
					return err
				}
				if err := engine.ChangeCredential(ctx, cred, newCred); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Credential changed.")
				return nil
			})
		},
	}
}
