package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database"
	"github.com/arghaM/famfolioz/internal/database/repository"
	"github.com/arghaM/famfolioz/internal/service"
	"github.com/arghaM/famfolioz/internal/statement"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// repositories
	folioRepo := repository.NewFolioRepo(db)
	holdingRepo := repository.NewHoldingRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	fundRepo := repository.NewFundRepo(db)
	conflictRepo := repository.NewConflictRepo(db)

	// services
	fundSvc := service.NewFundService(cfg, fundRepo, txRepo, holdingRepo, conflictRepo, logger)
	importer := service.NewImporter(cfg, folioRepo, holdingRepo, txRepo, fundRepo, conflictRepo, fundSvc, logger)
	taxSvc := service.NewTaxService(cfg, folioRepo, holdingRepo, txRepo, fundRepo, fundSvc, logger)

	switch os.Args[1] {
	case "import":
		err = runImport(ctx, importer, os.Args[2:])
	case "conflicts":
		err = runConflicts(ctx, conflictRepo)
	case "resolve":
		err = runResolve(ctx, conflictRepo, os.Args[2:])
	case "harvest":
		err = runHarvest(ctx, taxSvc, os.Args[2:])
	case "fund":
		err = runFund(ctx, fundRepo, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: famfolioz <command> [args]

commands:
  import <statement.json>            import a parsed statement
  conflicts                          list pending conflict groups
  resolve <group-id> <hash> [...]    activate selected hashes, discard the rest
  harvest [slab-pct]                 tax-loss harvesting report
  fund classify <isin> <cat> <pct>   set fund category and equity split
  fund exitload <isin> <pct>         set fund exit load percentage
  fund nav <isin> <nav>              set fund current NAV`)
}

func runImport(ctx context.Context, importer *service.Importer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one statement file")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var st statement.Statement
	dec := json.NewDecoder(f)
	if err := dec.Decode(&st); err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}
	if st.SourceFile == "" {
		st.SourceFile = filepath.Base(args[0])
	}

	summary, err := importer.Import(ctx, st)
	if err != nil {
		return err
	}

	fmt.Printf("batch %s: %s\n", summary.BatchID, summary.SourceFile)
	fmt.Printf("  folios:       %d new, %d existing\n", len(summary.NewFolios), len(summary.ExistingFolios))
	fmt.Printf("  transactions: %d new, %d duplicate, %d discarded, %d conflict, %d reversed\n",
		summary.NewTransactions, summary.DuplicateTransactions, summary.SkippedDiscarded,
		summary.ConflictTransactions, summary.ReversedTransactions)
	fmt.Printf("  repaired %d, reversals %d, balance-validated folios %d\n",
		summary.RepairedTransactions, summary.ReversalsDetected, summary.BalanceValidatedFolios)
	fmt.Printf("  auto-resolved conflicts %d, holdings reconciled %d\n",
		summary.AutoResolvedConflicts, summary.HoldingsReconciled)
	for _, w := range summary.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

func runConflicts(ctx context.Context, conflicts *repository.ConflictRepo) error {
	groups, err := conflicts.PendingGroups(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println("no pending conflicts")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("%s  %s (%s) on %s: %d candidates\n",
			g.GroupID, g.FolioNumber, g.SchemeName, g.Date, g.TxCount)
		members, err := conflicts.GroupTransactions(ctx, g.GroupID)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Printf("  %s  %-10s %12.2f  %10.4f units @ %.4f\n",
				m.Hash, m.Type, m.Amount, m.Units, m.NAV)
		}
	}
	return nil
}

func runResolve(ctx context.Context, conflicts *repository.ConflictRepo, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected group id and at least one hash")
	}
	res, err := conflicts.Resolve(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	fmt.Printf("group %s: activated %d, discarded %d\n", res.GroupID, res.Activated, res.Discarded)
	return nil
}

func runFund(ctx context.Context, funds *repository.FundRepo, args []string) error {
	if len(args) != 3 && len(args) != 4 {
		return fmt.Errorf("expected: classify <isin> <category> <equity-pct> | exitload <isin> <pct> | nav <isin> <nav>")
	}
	action, isin := args[0], args[1]
	if !statement.ValidISIN(isin) {
		return fmt.Errorf("invalid isin %q", isin)
	}
	f, err := funds.Get(ctx, isin)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("unknown fund %s", isin)
	}

	switch action {
	case "classify":
		if len(args) != 4 {
			return fmt.Errorf("expected: classify <isin> <category> <equity-pct>")
		}
		pct, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("equity pct %q: %w", args[3], err)
		}
		if err := funds.SetClassification(ctx, isin, args[2], pct); err != nil {
			return err
		}
		fmt.Printf("%s: category %s, equity %.1f%%\n", isin, args[2], pct)
	case "exitload":
		if len(args) != 3 {
			return fmt.Errorf("expected: exitload <isin> <pct>")
		}
		pct, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("exit load pct %q: %w", args[2], err)
		}
		if err := funds.SetExitLoad(ctx, isin, pct); err != nil {
			return err
		}
		fmt.Printf("%s: exit load %.2f%%\n", isin, pct)
	case "nav":
		if len(args) != 3 {
			return fmt.Errorf("expected: nav <isin> <nav>")
		}
		nav, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("nav %q: %w", args[2], err)
		}
		if err := funds.SetCurrentNAV(ctx, isin, nav); err != nil {
			return err
		}
		fmt.Printf("%s: current nav %.4f\n", isin, nav)
	default:
		return fmt.Errorf("unknown fund action %q", action)
	}
	return nil
}

func runHarvest(ctx context.Context, taxSvc *service.TaxService, args []string) error {
	slab := 0.0
	if len(args) > 0 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("slab pct %q: %w", args[0], err)
		}
		slab = v
	}

	report, err := taxSvc.Harvest(ctx, time.Now(), slab)
	if err != nil {
		return err
	}

	fmt.Printf("harvesting opportunities: %d (%d urgent), slab %.0f%%\n",
		report.OpportunityCount, report.UrgentCount, report.TaxSlabPct)
	fmt.Printf("  unrealized loss %.2f, tax savings %.2f, net benefit %.2f\n",
		report.TotalUnrealizedLoss, report.TotalTaxSavings, report.TotalNetBenefit)

	for _, o := range report.Opportunities {
		flag := " "
		if o.Urgent {
			flag = "!"
		}
		fmt.Printf("%s %s %s lot %s: loss %.2f, save %.2f, costs %.2f, net %.2f (%s, %d days)\n",
			flag, o.FolioNumber, o.SchemeName, o.LotDate, o.UnrealizedLoss,
			o.TaxSavings, o.TotalCosts, o.NetBenefit, o.GainType, o.HoldingDays)
		if o.Urgent {
			fmt.Printf("    %d days until long-term\n", o.UrgencyDays)
		}
		if len(o.SimilarFunds) > 0 {
			names := make([]string, 0, len(o.SimilarFunds))
			for _, s := range o.SimilarFunds {
				names = append(names, s.SchemeName)
			}
			fmt.Printf("    similar: %s\n", strings.Join(names, ", "))
		}
	}

	rg := report.RealizedGains
	fmt.Printf("\nFY %s to %s realized: equity STCG %.2f, equity LTCG %.2f, debt %.2f (total %.2f)\n",
		rg.FYStart, rg.FYEnd, rg.EquitySTCG, rg.EquityLTCG, rg.DebtGains, rg.TotalRealized)
	fmt.Printf("LTCG exemption used %.2f, remaining %.2f\n",
		rg.LTCGExemptionUsed, rg.LTCGExemptionRemaining)

	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}
