// README: Fee quote CLI; prices a stay offline from flags or against the live policy set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gatehouse/internal/infra"
	"gatehouse/internal/modules/billing"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/types"
)

type quoteConfig struct {
	DSN    string
	SiteID string
	Entry  string
	Exit   string

	BaseTimeMinutes  int
	BaseFee          int64
	UnitTimeMinutes  int
	UnitFee          int64
	GraceTimeMinutes int
	DailyMaxFee      int64

	Timeout time.Duration
}

func loadConfig() quoteConfig {
	var cfg quoteConfig
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("GATEHOUSE_DB_DSN", ""), "postgres DSN; empty prices from the flags below")
	flag.StringVar(&cfg.SiteID, "site", "", "site id when pricing against the database")
	flag.StringVar(&cfg.Entry, "entry", "", "entry time, RFC3339 (required)")
	flag.StringVar(&cfg.Exit, "exit", "", "exit time, RFC3339; empty means now")
	flag.IntVar(&cfg.BaseTimeMinutes, "base-time", 30, "base time in minutes")
	flag.Int64Var(&cfg.BaseFee, "base-fee", 1000, "base fee")
	flag.IntVar(&cfg.UnitTimeMinutes, "unit-time", 10, "billing unit in minutes")
	flag.Int64Var(&cfg.UnitFee, "unit-fee", 500, "fee per unit")
	flag.IntVar(&cfg.GraceTimeMinutes, "grace", 0, "grace time in minutes")
	flag.Int64Var(&cfg.DailyMaxFee, "daily-max", 0, "daily fee cap; 0 means uncapped")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "database timeout")
	flag.Parse()
	return cfg
}

func main() {
	cfg := loadConfig()
	if cfg.Entry == "" {
		fmt.Fprintln(os.Stderr, "missing -entry")
		os.Exit(2)
	}
	entry, err := time.Parse(time.RFC3339, cfg.Entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -entry: %v\n", err)
		os.Exit(2)
	}
	exit := time.Now()
	if cfg.Exit != "" {
		exit, err = time.Parse(time.RFC3339, cfg.Exit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad -exit: %v\n", err)
			os.Exit(2)
		}
	}

	rule, err := resolveRule(cfg, exit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	q := billing.Compute(entry, exit, *rule, nil, exit)
	fmt.Printf("duration: %s\n", exit.Sub(entry).Round(time.Minute))
	fmt.Printf("total:    %d\n", q.TotalFee)
	fmt.Printf("payable:  %d\n", q.PaidFee)
}

// resolveRule picks the fee rule from the live policy set when a DSN is
// given, otherwise builds one from the flags.
func resolveRule(cfg quoteConfig, asOf time.Time) (*policy.FeeRule, error) {
	if cfg.DSN == "" {
		rule := &policy.FeeRule{
			BaseTimeMinutes:  cfg.BaseTimeMinutes,
			BaseFee:          cfg.BaseFee,
			UnitTimeMinutes:  cfg.UnitTimeMinutes,
			UnitFee:          cfg.UnitFee,
			GraceTimeMinutes: cfg.GraceTimeMinutes,
		}
		if cfg.DailyMaxFee > 0 {
			rule.DailyMaxFee = &cfg.DailyMaxFee
		}
		return rule, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	db, err := infra.NewDB(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	store := policy.NewStore(db)
	siteID := types.ID(cfg.SiteID)
	fees, err := store.ActivePolicies(ctx, siteID, policy.TypeFee)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	cal, err := store.CalendarFor(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	match := policy.FirstMatch(fees, asOf, cal)
	if match == nil || match.Fee == nil {
		return nil, fmt.Errorf("no fee policy matches %s at site %q", asOf.Format(time.RFC3339), cfg.SiteID)
	}
	return match.Fee, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
