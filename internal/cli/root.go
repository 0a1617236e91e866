// Package cli implements ledgerctl, a command-line front end over the
// ledger service.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
)

// Credentials never travel as flag values, where ps and shell history would
// see them. Each is taken from its environment variable or read as one line
// from stdin.
const (
	credentialEnv    = "LEDGER_CREDENTIAL"
	newCredentialEnv = "LEDGER_NEW_CREDENTIAL"
)

type LedgerService interface {
	Login(ctx context.Context, id, cred string) (*ledger.Engine, error)
	Provision(ctx context.Context, id, cred string, openingBalance decimal.Decimal) (*domain.Account, error)
	CurrencyScale() int32
}

// ServiceFactory opens the ledger for a single command. The returned func
// releases whatever the factory opened.
type ServiceFactory func(ctx context.Context) (LedgerService, func(), error)

type globalOptions struct {
	account string

	stdin *bufio.Reader
}

func (o *globalOptions) validate() error {
	if o.account == "" {
		return fmt.Errorf("%w: --account is required", domain.ErrInvalidOperation)
	}
	return nil
}

// secret returns $env if set, otherwise the next stdin line.
func (o *globalOptions) secret(cmd *cobra.Command, env, what string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	if o.stdin == nil {
		o.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", what)
	line, err := o.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: %s required, set $%s or pipe it on stdin", domain.ErrInvalidOperation, what, env)
	}
	return line, nil
}

func NewRootCommand(factory ServiceFactory) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate on ledger accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.account, "account", "", "account identifier")

	root.AddCommand(
		newOpenAccountCommand(factory, opts),
		newBalanceCommand(factory, opts),
		newAmountCommand(factory, opts, "deposit", "Deposit funds into the account", "Deposited", (*ledger.Engine).Deposit),
		newAmountCommand(factory, opts, "withdraw", "Withdraw funds from the account", "Withdrew", (*ledger.Engine).Withdraw),
		newTransferCommand(factory, opts),
		newChangeCredentialCommand(factory, opts),
	)
	return root
}

// Run executes root, prints any failure to its error stream and returns the
// process exit code.
func Run(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(root.ErrOrStderr(), "Error:", Message(err))
	return ExitCode(err)
}

const (
	ExitOK                     = 0
	ExitRejected               = 1
	ExitCredentialMismatch     = 3
	ExitReconciliationRequired = 4
	ExitUnavailable            = 5
)

// ExitCode maps an error to the process exit status. Unreconciled transfers
// get their own code so scripts can page an operator.
func ExitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNone:
		return ExitOK
	case domain.KindReconciliationRequired:
		return ExitReconciliationRequired
	case domain.KindCredentialMismatch:
		return ExitCredentialMismatch
	case domain.KindPersistence:
		return ExitUnavailable
	}
	return ExitRejected
}

// Message is the line shown to the user. Errors outside the ledger taxonomy,
// such as flag parsing failures, are shown verbatim.
func Message(err error) string {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		return err.Error()
	}
	msg := domain.UserMessage(err)
	var tfe *domain.TransferFailedError
	if errors.As(err, &tfe) {
		msg = fmt.Sprintf("%s (transfer %s)", msg, tfe.TransferID)
	}
	return msg
}

// withSession logs in as --account and hands the engine and the credential
// it logged in with to fn.
func withSession(cmd *cobra.Command, factory ServiceFactory, opts *globalOptions,
	fn func(ctx context.Context, svc LedgerService, engine *ledger.Engine, cred string) error) error {
	if err := opts.validate(); err != nil {
		return err
	}
	cred, err := opts.secret(cmd, credentialEnv, "credential")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, release, err := factory(ctx)
	if err != nil {
		return err
	}
	defer release()

	engine, err := svc.Login(ctx, opts.account, cred)
	if err != nil {
		return err
	}
	return fn(ctx, svc, engine, cred)
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidAmount, s)
	}
	return amount, nil
}
