package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/neetrank/internal/analysis"
	"github.com/pavelanni/neetrank/internal/config"
	"github.com/pavelanni/neetrank/internal/handler"
	appI18n "github.com/pavelanni/neetrank/internal/i18n"
	"github.com/pavelanni/neetrank/internal/llm"
	"github.com/pavelanni/neetrank/internal/llm/prompts"
	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/pipeline"
	"github.com/pavelanni/neetrank/internal/rank"
	"github.com/pavelanni/neetrank/internal/source"
	"github.com/pavelanni/neetrank/internal/store"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "neetrank",
		Short: "NEET quiz analytics and rank prediction service",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), trainCmd(), reportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `neetrank --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "neetrank.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP analytics API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("source", "store", "Quiz history source (store, file, http)")
	f.String("data-dir", "data", "Directory holding api_endpoint.json and quiz_submission.json (file source)")
	f.String("source-url", "", "Base URL of the remote quiz service (http source)")
	f.String("profile", "", "Exam profile TOML file (default: embedded NEET profile)")
	f.StringP("lang", "l", "en", "Default response language (en, hi)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /neet)")
	f.String("admin-token", "", "Admin API token (or set NEETRANK_ADMIN_TOKEN); empty disables /admin")
	f.Int("recent-days", 7, "Window in days for the recent-activity count")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Bool("coach", false, "Enable the LLM study coach")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptConcise), "Coaching prompt variant (concise, detailed)")
	addCommonFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import quiz submissions from JSON files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.Bool("current", false, "Record the submissions as in-progress (current) submissions")
	f.String("ranks", "", "JSON file of observed ranks ([{\"user_id\": ..., \"observed_rank\": ...}])")
	addCommonFlags(cmd)
	return cmd
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the rank model on recorded ranks and stored histories",
		RunE:  runTrain,
	}
	addCommonFlags(cmd)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a user's full summary as JSON",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.StringP("user", "u", "", "User ID (required)")
	f.String("profile", "", "Exam profile TOML file (default: embedded NEET profile)")
	f.StringP("lang", "l", "en", "Report language (en, hi)")
	f.Int("recent-days", 7, "Window in days for the recent-activity count")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(cmd)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("NEETRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("neetrank")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/neetrank")
	v.AddConfigPath("/etc/neetrank")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newSource(v *viper.Viper, db *store.Store) (source.Source, error) {
	switch kind := strings.ToLower(v.GetString("source")); kind {
	case "", "store":
		return db, nil
	case "file":
		return source.FileSource{Dir: v.GetString("data-dir")}, nil
	case "http":
		url := v.GetString("source-url")
		if url == "" {
			return nil, errors.New("--source-url is required for the http source")
		}
		return source.NewHTTPSource(strings.TrimRight(url, "/")), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want store, file or http)", kind)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	profile, err := config.LoadProfile(v.GetString("profile"))
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	src, err := newSource(v, db)
	if err != nil {
		return err
	}

	est := rank.NewEstimator(profile.Colleges)
	restored, err := pipeline.RestoreLatest(ctx, db, est)
	if err != nil {
		return fmt.Errorf("restore rank model: %w", err)
	}
	if !restored {
		// First start: fit from whatever samples exist, else stay on the placeholder.
		if _, err := pipeline.Train(ctx, db, est); err != nil {
			slog.Info("rank model not trained, serving placeholder ranks", "reason", err)
		}
	}

	var coach handler.Coach
	if v.GetBool("coach") {
		variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(variant) {
			slog.Warn("invalid prompt-variant, using concise", "variant", variant)
			variant = string(prompts.PromptConcise)
		}
		llmClient, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		coach = llmClient
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	svcCfg := model.ServiceConfig{
		BasePath:   basePath,
		RecentDays: v.GetInt("recent-days"),
	}
	if token := v.GetString("admin-token"); token != "" {
		hash, err := handler.HashAdminToken(token)
		if err != nil {
			return fmt.Errorf("hash admin token: %w", err)
		}
		svcCfg.AdminToken = hash
	}

	h, err := handler.New(db, src, est, coach, profile, svcCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"exam", profile.Name,
		"source", v.GetString("source"),
		"lang", lang,
		"rank_model", est.State().String(),
		"coach", coach != nil,
		"admin", svcCfg.AdminToken != "",
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := importSubmissions(ctx, db, args, v.GetBool("current")); err != nil {
		return err
	}
	if path := v.GetString("ranks"); path != "" {
		if err := importRanks(ctx, db, path); err != nil {
			return err
		}
	}
	return nil
}

// importSubmissions loads JSON files holding either an array of submissions
// or a single submission. Files already imported with the same content are
// skipped; changed files are re-imported and replace earlier copies.
func importSubmissions(ctx context.Context, db *store.Store, paths []string, current bool) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("submissions file unchanged, skipping", "path", path)
			continue
		}

		raws, err := decodeSubmissions(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		n, err := db.SaveSubmissions(ctx, raws, current)
		if err != nil {
			return fmt.Errorf("save submissions from %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported submissions", "path", path, "count", n, "current", current)
	}
	return nil
}

func decodeSubmissions(data []byte) ([]model.RawSubmission, error) {
	var raws []model.RawSubmission
	if err := json.Unmarshal(data, &raws); err == nil {
		return raws, nil
	}
	var single model.RawSubmission
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []model.RawSubmission{single}, nil
}

func importRanks(ctx context.Context, db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var records []handler.RankRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, rec := range records {
		if rec.UserID == "" || rec.ObservedRank < 1 {
			return fmt.Errorf("invalid rank record %+v in %s", rec, path)
		}
		if err := db.UpsertRankSample(ctx, rec.UserID, rec.ObservedRank); err != nil {
			return fmt.Errorf("record rank for %s: %w", rec.UserID, err)
		}
	}
	slog.Info("imported ranks", "path", path, "count", len(records))
	return nil
}

func runTrain(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	res, err := pipeline.Train(context.Background(), db, rank.NewEstimator(nil))
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d samples used, %d skipped, intercept %.2f\n",
		res.RunID, res.Used, res.Skipped, res.Model.Intercept)
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	profile, err := config.LoadProfile(v.GetString("profile"))
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))

	est := rank.NewEstimator(profile.Colleges)
	if _, err := pipeline.RestoreLatest(ctx, db, est); err != nil {
		return fmt.Errorf("restore rank model: %w", err)
	}

	userID := v.GetString("user")
	a, err := pipeline.Analyze(ctx, db, est, userID)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", userID, err)
	}
	summary := pipeline.BuildSummary(a, pipeline.SummaryOptions{
		Insights: analysis.Options{
			Topics:     profile.Topics,
			Phrasebook: appI18n.PhrasebookFor(ctx),
		},
		RecentDays: v.GetInt("recent-days"),
	})
	slog.Info(appI18n.Tp(ctx, "QuizzesAnalyzed", len(a.Submissions)), "user_id", userID)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
