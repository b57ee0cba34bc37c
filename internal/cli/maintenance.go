package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

// withApp runs fn against a wired app under the system audit identity.
func withApp(cmd *cobra.Command, e *env, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := ledger.WithAudit(cmd.Context(), ledger.AuditInfo{Actor: "system", Source: "cli"})
	a, err := newApp(ctx, e, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func leaseArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid lease id %q: %w", args[0], err)
	}
	return id, nil
}

func newRepairDepositsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "repair-deposits",
		Short: "Recompute security_deposit_paid from completed deposit payments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, e, func(ctx context.Context, a *app) error {
				fixes, err := a.svc.RepairDeposits(ctx)
				if err != nil {
					return err
				}
				e.log.Info("deposit repair finished", zap.Int("corrections", len(fixes)))
				if fixes == nil {
					fixes = []ledger.DepositCorrection{}
				}
				return printJSON(cmd.OutOrStdout(), fixes)
			})
		},
	}
}

func newRetroApplyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "retro-apply LEASE_ID",
		Short: "Apply a lease's advance rent to its existing invoices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, e, func(ctx context.Context, a *app) error {
				res, err := a.svc.RetroactiveApply(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newAuditCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "audit LEASE_ID",
		Short: "Cross-check a lease's balances against its invoices and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := leaseArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, e, func(ctx context.Context, a *app) error {
				rep, err := a.svc.AuditLease(ctx, id)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
				if !rep.Consistent {
					return fmt.Errorf("lease %s has %d discrepancies", id, len(rep.Discrepancies))
				}
				return nil
			})
		},
	}
}

func newMarkOverdueCmd(e *env) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag unpaid invoices past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date := time.Now().UTC()
			if asOf != "" {
				d, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				date = d
			}
			return withApp(cmd, e, func(ctx context.Context, a *app) error {
				n, err := a.svc.MarkOverdue(ctx, date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked %d invoice(s) overdue as of %s\n", n, date.Format(time.DateOnly))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference date, YYYY-MM-DD (default today)")
	return cmd
}
