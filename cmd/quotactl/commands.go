package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/auth"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/handler"
	"github.com/spf13/cobra"
)

const defaultActor = "quotactl"

func registerCommands(root *cobra.Command) {
	root.AddCommand(
		newPlansCmd(),
		newSeedPlansCmd(),
		newSubscribeCmd(),
		newChangePlanCmd(),
		newSetEnabledCmd("enable", true),
		newSetEnabledCmd("disable", false),
		newStatusCmd(),
		newEvaluateCmd(),
		newPolicyCmd(),
		newUsageCmd(),
		newHistoryCmd(),
		newSweepCmd(),
		newRenewCmd(),
		newInvalidateCmd(),
		newTokenCmd(),
	)
}

func newPlansCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				plans, err := a.plans.FindAll(ctx, !all)
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewPlanListResponse(plans))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive plans")
	return cmd
}

func newSeedPlansCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "seed-plans",
		Short: "Insert the default plans that are missing",
		Long: `Insert free, pro, team and enterprise by name. Existing plans are left
untouched so edited limits survive a re-seed.`,
		Example: `  # Local sqlite database, create tables first
  QUOTA_DATABASE_DRIVER=sqlite quotactl seed-plans --migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if migrate {
					if err := a.db.AutoMigrate(); err != nil {
						return fmt.Errorf("auto-migrate: %w", err)
					}
				}
				n, err := a.plans.SeedDefaults(ctx, billing.DefaultCatalog(time.Now()))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d plan(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create or update tables from the models before seeding")
	return cmd
}

func newSubscribeCmd() *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:   "subscribe <tenant-id>",
		Short: "Start a subscription for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sub, err := a.admin.CreateSubscription(ctx, appbilling.CreateSubscriptionInput{
					TenantID: tenantID,
					PlanName: plan,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewSubscriptionResponse(sub))
			})
		},
	}
	cmd.Flags().StringVar(&plan, "plan", billing.PlanFree, "Plan name")
	return cmd
}

func newChangePlanCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "change-plan <tenant-id> <plan>",
		Short: "Move a tenant to another plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sub, err := a.admin.ChangePlan(ctx, appbilling.ChangePlanInput{
					TenantID: tenantID,
					PlanName: args[1],
					Actor:    actor,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewSubscriptionResponse(sub))
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "Recorded as the actor of the change")
	return cmd
}

func newSetEnabledCmd(name string, enabled bool) *cobra.Command {
	var actor, reason string
	short := "Re-enable a disabled subscription"
	if !enabled {
		short = "Disable a subscription; the tenant degrades immediately"
	}
	cmd := &cobra.Command{
		Use:   name + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sub, err := a.admin.SetEnabled(ctx, appbilling.SetEnabledInput{
					TenantID: tenantID,
					Enabled:  enabled,
					Reason:   reason,
					Actor:    actor,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewSubscriptionResponse(sub))
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "Recorded as the actor of the change")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the subscription is changed")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tenant-id>",
		Short: "Show the enforcement state, recomputing it when due",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := a.enforcement.GetStatus(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewEnforcementStatusResponse(state))
			})
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <tenant-id>",
		Short: "Recompute and store the enforcement state now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := a.enforcement.EvaluateAndCommit(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewEnforcementStatusResponse(state))
			})
		},
	}
}

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy <tenant-id>",
		Short: "Show the policy an SDK would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return printJSON(cmd, handler.NewSDKPolicyResponse(a.enforcement.GetSDKPolicy(ctx, tenantID)))
			})
		},
	}
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage <tenant-id>",
		Short: "Show usage against limits for every dimension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, _, err := a.meter.GetReport(ctx, tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewUsageReportResponse(report))
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <tenant-id>",
		Short: "Show the enforcement audit trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.history.List(ctx, tenantID, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, handler.NewHistoryListResponse(entries))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", appbilling.DefaultHistoryLimit, "Maximum entries")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate tenants whose enforcement record is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var (
					result *appbilling.SweepResult
					err    error
				)
				if all {
					result, err = a.enforcement.EvaluateAllTenants(ctx)
				} else {
					if limit <= 0 {
						limit = cfg.Scheduler.BatchSize
					}
					result, err = a.enforcement.SweepDue(ctx, limit)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %d tenant(s): %d ok, %d failed\n",
					result.Total, result.Successful, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Evaluate every subscribed tenant, due or not")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum tenants (default scheduler.batch_size)")
	return cmd
}

func newRenewCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Roll finished billing periods forward and expire ended trials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if limit <= 0 {
					limit = cfg.Scheduler.RenewalBatchSize
				}
				result, err := a.admin.RenewDue(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d subscription(s): %d renewed, %d expired, %d failed\n",
					result.Total, result.Renewed, result.Expired, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum subscriptions (default scheduler.renewal_batch_size)")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "invalidate <tenant-id>",
		Short: "Force the next enforcement read to recompute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.admin.Invalidate(ctx, tenantID, actor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", tenantID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "Recorded in the log")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		tenant string
		user   string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard token for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseTenant(tenant)
			if err != nil {
				return err
			}
			userID := uuid.New()
			if user != "" {
				if userID, err = uuid.Parse(user); err != nil {
					return fmt.Errorf("invalid user id %q: %w", user, err)
				}
			}
			token, expiresAt, err := auth.NewJWTService(cfg.JWT).Issue(auth.IssueTokenInput{
				TenantID: tenantID,
				UserID:   userID,
				Email:    email,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"token":      token,
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (required)")
	cmd.Flags().StringVar(&user, "user", "", "User id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func parseTenant(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", s, err)
	}
	return id, nil
}
