package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caseos/internal/agent"
	"caseos/internal/bankstmt"
	"caseos/internal/classify"
	"caseos/internal/config"
	"caseos/internal/eligibility"
	"caseos/internal/extract"
	"caseos/internal/features"
	"caseos/internal/gst"
	"caseos/internal/intake"
	"caseos/internal/ledger"
	"caseos/internal/lenderkb"
	"caseos/internal/logging"
	"caseos/internal/ocr"
	"caseos/internal/queue"
	"caseos/internal/quickscan"
	"caseos/internal/report"
	"caseos/internal/storage"
	"caseos/internal/store"
	"caseos/internal/whatsapp"
)

// app bundles the shared wiring for CLI commands.
type app struct {
	cfg    config.Config
	store  *store.Store
	files  *storage.Local
	logger *zap.Logger
	ledger *ledger.Service
	engine *eligibility.Engine
	llm    *agent.Agent
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "caseos",
		Short:         "Loan-application intelligence pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitDBCmd(),
		newIngestCmd(),
		newCaseCmd(),
		newUploadCmd(),
		newExtractCmd(),
		newScoreCmd(),
		newReportCmd(),
		newQuickScanCmd(),
		newWorkerCmd(),
		newLendersCmd(),
		newWhatsAppCmd(),
	)
	return root
}

// setup opens the database and wires the services. Callers must defer teardown.
func setup(ctx context.Context) (*app, error) {
	cfg := config.Load()

	logger, err := logging.New()
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(cfg.DBConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	files, err := storage.NewLocal(cfg.StorageRoot)
	if err != nil {
		st.Close()
		return nil, err
	}

	llm, err := agent.NewAgent(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn("LLM agent unavailable, using deterministic strategies", zap.Error(err))
		llm = nil
	}

	engine := eligibility.NewEngine(st, logger)
	assembler := features.NewAssembler(cfg.FeatureConfThreshold)

	var strategyModel report.StrategyModel
	if llm != nil {
		strategyModel = llm
	}
	strategy := report.NewStrategyGenerator(strategyModel, cfg.LLMTimeout, logger)

	return &app{
		cfg:    cfg,
		store:  st,
		files:  files,
		logger: logger,
		engine: engine,
		llm:    llm,
		ledger: ledger.NewService(st, files, assembler, engine, strategy, logger),
	}, nil
}

func (a *app) teardown() {
	if a.llm != nil {
		a.llm.Close()
	}
	a.store.Close()
	_ = a.logger.Sync()
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Initialize the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			if err := a.store.InitDB(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Database initialized successfully.")
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest lender knowledge base CSVs",
	}

	policy := &cobra.Command{
		Use:   "policy <csv-path>",
		Short: "Ingest the lender policy CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := lenderkb.NewIngestor(a.store, a.logger).IngestPolicyCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("Rows: %d, lenders created: %d, products created: %d, updated: %d, errors: %d\n",
				stats.RowsProcessed, stats.LendersCreated, stats.ProductsCreated, stats.ProductsUpdated, stats.Errors)
			return nil
		},
	}

	pincodes := &cobra.Command{
		Use:   "pincodes <csv-path>",
		Short: "Ingest the pincode serviceability CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := lenderkb.NewIngestor(a.store, a.logger).IngestPincodeCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("Lenders mapped: %d, pincodes created: %d, skipped: %d, errors: %d\n",
				stats.LendersMapped, stats.PincodesCreated, stats.SkippedNonNumeric, stats.Errors)
			return nil
		},
	}

	cmd.AddCommand(policy, pincodes)
	return cmd
}

func newCaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage loan cases",
	}

	var (
		userID, borrower, entity, program, industry, pincode string
		amount                                               float64
	)

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new case",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			data := store.CaseCreate{}
			if borrower != "" {
				data.BorrowerName = &borrower
			}
			if entity != "" {
				data.EntityType = &entity
			}
			if program != "" {
				pt := store.ProgramType(program)
				data.ProgramType = &pt
			}
			if industry != "" {
				data.IndustryType = &industry
			}
			if pincode != "" {
				data.Pincode = &pincode
			}
			if amount > 0 {
				data.LoanAmountRequested = &amount
			}

			c, err := a.ledger.CreateCase(cmd.Context(), userID, nil, data)
			if err != nil {
				return err
			}
			fmt.Printf("Created case %s\n", c.CaseID)
			return nil
		},
	}
	create.Flags().StringVar(&userID, "user", "00000000-0000-0000-0000-000000000001", "Operator user id")
	create.Flags().StringVar(&borrower, "borrower", "", "Borrower name")
	create.Flags().StringVar(&entity, "entity", "", "Entity type")
	create.Flags().StringVar(&program, "program", "", "Program type (banking/income/hybrid)")
	create.Flags().StringVar(&industry, "industry", "", "Industry type")
	create.Flags().StringVar(&pincode, "pincode", "", "Business pincode")
	create.Flags().Float64Var(&amount, "amount", 0, "Requested loan amount (lakhs)")

	status := &cobra.Command{
		Use:   "status <case-id>",
		Short: "Show case status with job counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			st, err := a.ledger.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s (completeness %.0f%%)\n", st.Case.CaseID, st.Case.Status, st.Case.CompletenessScore)
			fmt.Printf("Jobs: %d queued, %d processing, %d done, %d failed\n",
				st.Jobs.Queued, st.Jobs.Processing, st.Jobs.Done, st.Jobs.Failed)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cases for an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			cases, err := a.store.ListCases(cmd.Context(), userID, 50)
			if err != nil {
				return err
			}
			for _, c := range cases {
				name := ""
				if c.BorrowerName != nil {
					name = *c.BorrowerName
				}
				fmt.Printf("%s  %-20s %s\n", c.CaseID, c.Status, name)
			}
			return nil
		},
	}
	list.Flags().StringVar(&userID, "user", "00000000-0000-0000-0000-000000000001", "Operator user id")

	del := &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Hard-delete a case and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			if err := a.ledger.DeleteCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted case %s\n", args[0])
			return nil
		},
	}

	var (
		cibilManual     int
		turnoverManual  float64
		vintageOverride float64
	)
	update := &cobra.Command{
		Use:   "update <case-id>",
		Short: "Apply partial manual overrides to a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			upd := store.CaseUpdate{}
			if borrower != "" {
				upd.BorrowerName = &borrower
			}
			if entity != "" {
				upd.EntityType = &entity
			}
			if program != "" {
				pt := store.ProgramType(program)
				upd.ProgramType = &pt
			}
			if industry != "" {
				upd.IndustryType = &industry
			}
			if pincode != "" {
				upd.Pincode = &pincode
			}
			if cibilManual > 0 {
				upd.CIBILScoreManual = &cibilManual
			}
			if turnoverManual > 0 {
				upd.MonthlyTurnoverMan = &turnoverManual
			}
			if vintageOverride > 0 {
				upd.BusinessVintageYears = &vintageOverride
			}

			c, err := a.store.UpdateCase(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			// Manual overrides count toward document coverage.
			if _, err := a.ledger.Checklist(cmd.Context(), c.CaseID); err != nil {
				return err
			}
			fmt.Printf("Updated case %s\n", c.CaseID)
			return nil
		},
	}
	update.Flags().StringVar(&borrower, "borrower", "", "Borrower name")
	update.Flags().StringVar(&entity, "entity", "", "Entity type")
	update.Flags().StringVar(&program, "program", "", "Program type")
	update.Flags().StringVar(&industry, "industry", "", "Industry type")
	update.Flags().StringVar(&pincode, "pincode", "", "Business pincode")
	update.Flags().IntVar(&cibilManual, "cibil", 0, "Manual CIBIL score")
	update.Flags().Float64Var(&turnoverManual, "monthly-turnover", 0, "Manual monthly turnover")
	update.Flags().Float64Var(&vintageOverride, "vintage", 0, "Business vintage (years)")

	cmd.AddCommand(create, status, list, del, update)
	return cmd
}

func newWhatsAppCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whatsapp <message...>",
		Short: "Dispatch an inbound WhatsApp command text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := whatsapp.ParseCommand(strings.Join(args, " "))

			switch parsed.Action {
			case "help", "unknown":
				fmt.Println(whatsapp.HelpText)
				return nil
			}

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			switch parsed.Action {
			case "status":
				st, err := a.ledger.Status(cmd.Context(), parsed.CaseID)
				if err != nil {
					return err
				}
				fmt.Println(whatsapp.StatusSummary(st.Case, st.Jobs))
			case "report":
				data, err := a.ledger.LatestReport(cmd.Context(), parsed.CaseID)
				if err != nil {
					return err
				}
				fmt.Println(whatsapp.ReportSummary(data))
			}
			return nil
		},
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <case-id> <file>...",
		Short: "Upload documents (or ZIP archives) to a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			var files []intake.File
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				parts := strings.Split(path, string(os.PathSeparator))
				files = append(files, intake.File{Name: parts[len(parts)-1], Data: data})
			}

			svc := intake.NewService(a.store, a.files,
				a.cfg.MaxFileSizeBytes, a.cfg.MaxUploadSizeBytes, a.cfg.JobMaxAttempts, a.logger)
			result, err := svc.Upload(cmd.Context(), args[0], files)
			if err != nil {
				return err
			}
			fmt.Printf("Accepted %d documents (%d duplicates skipped, %d entries ignored)\n",
				len(result.Accepted), result.Duplicates, len(result.Skipped))
			return nil
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-features <case-id>",
		Short: "Assemble the borrower feature vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			vector, err := a.ledger.ExtractFeatures(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Feature vector assembled: %.2f%% complete\n", vector.FeatureCompleteness)
			return nil
		},
	}
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <case-id>",
		Short: "Run eligibility scoring against the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			resp, err := a.ledger.ScoreEligibility(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Evaluated %d products, %d passed\n", resp.TotalLendersEvaluated, resp.LendersPassed)
			for _, r := range resp.Results {
				if r.Rank == nil {
					continue
				}
				fmt.Printf("%2d. %s - %s (%.0f/100, %s)\n",
					*r.Rank, r.LenderName, r.ProductName, *r.Score, *r.Probability)
			}
			for _, reason := range resp.RejectionReasons {
				fmt.Println("✗", reason)
			}
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	var asWhatsApp bool

	cmd := &cobra.Command{
		Use:   "report <case-id>",
		Short: "Generate the case report (JSON + PDF)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			data, saved, err := a.ledger.GenerateReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asWhatsApp {
				fmt.Println(whatsapp.ReportSummary(data))
				return nil
			}

			pdfNote := "no PDF"
			if saved.PDFKey != nil {
				pdfNote = *saved.PDFKey
			}
			fmt.Printf("Report generated for %s (%s)\n", data.CaseID, pdfNote)
			fmt.Printf("Strengths: %d, risks: %d, lender matches: %d\n",
				len(data.Strengths), len(data.RiskFlags), len(data.LenderMatches))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asWhatsApp, "whatsapp", false, "Print the WhatsApp-friendly summary")
	return cmd
}

func newQuickScanCmd() *cobra.Command {
	var (
		name, entity, pincode, program string
		cibil                          int
		vintage, turnover              float64
	)

	cmd := &cobra.Command{
		Use:   "quick-scan",
		Short: "Run a synchronous eligibility pre-check without documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			in := quickscan.Input{
				BorrowerName: name,
				EntityType:   entity,
				Pincode:      pincode,
				ProgramType:  program,
			}
			if cibil > 0 {
				in.CIBILScore = &cibil
			}
			if vintage > 0 {
				in.BusinessVintageYears = &vintage
			}
			if turnover > 0 {
				in.AnnualTurnoverLakhs = &turnover
			}

			resp, err := quickscan.NewScanner(a.store, a.engine, a.logger).Scan(cmd.Context(), nil, in)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Borrower name")
	cmd.Flags().StringVar(&entity, "entity", "", "Entity type")
	cmd.Flags().StringVar(&pincode, "pincode", "", "Business pincode")
	cmd.Flags().StringVar(&program, "program", "", "Program type filter")
	cmd.Flags().IntVar(&cibil, "cibil", 0, "CIBIL score")
	cmd.Flags().Float64Var(&vintage, "vintage", 0, "Business vintage (years)")
	cmd.Flags().Float64Var(&turnover, "turnover", 0, "Annual turnover (lakhs)")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the document-processing worker pool in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			pool := buildPool(a, nil)
			fmt.Printf("Worker pool started (%d workers)\n", a.cfg.WorkerCount)
			return pool.Run(cmd.Context())
		},
	}
}

// buildPool wires the per-document processor and its pool from app config.
func buildPool(a *app, metrics *queue.Metrics) *queue.Pool {
	classifier := classify.New(nil)
	extractor := extract.New()
	ocrEngine := ocr.NewHTTPEngine(a.cfg.OCREndpoint, a.cfg.BankAnalysisTimeout)
	remote := bankstmt.NewRemoteParser(a.cfg.BankParserEndpoint, a.cfg.BankAnalysisTimeout)
	analyzer := bankstmt.NewAnalyzer(remote, nil, bankstmt.Caps{
		MaxBytesPerPDF: a.cfg.MaxStatementBytes,
		MaxStatements:  a.cfg.MaxStatementsPerCase,
	}, a.cfg.BankAnalysisTimeout, a.logger)
	authority := gst.NewHTTPAuthority(a.cfg.GSTEndpoint, a.cfg.LLMTimeout)

	processor := queue.NewProcessor(a.store, a.files, classifier, ocrEngine, extractor, analyzer, authority, a.logger)
	return queue.NewPool(a.store, processor, a.cfg.WorkerCount, a.cfg.JobPollInterval, metrics, a.logger)
}

func newLendersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lenders",
		Short: "Query the lender knowledge base",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List lenders with product and pincode counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			lenders, err := a.store.ListLenders(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range lenders {
				fmt.Printf("%-30s products=%d pincodes=%d active=%t\n",
					l.LenderName, l.ProductCount, l.PincodeCount, l.IsActive)
			}
			return nil
		},
	}

	coverage := &cobra.Command{
		Use:   "coverage <pincode>",
		Short: "List lenders covering a pincode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.teardown()

			names, err := a.store.FindLendersByPincode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Printf("No lenders cover pincode %s\n", args[0])
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.AddCommand(list, coverage)
	return cmd
}
