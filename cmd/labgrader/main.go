package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/labgrader/internal/answer"
	"github.com/pavelanni/labgrader/internal/fit"
	"github.com/pavelanni/labgrader/internal/grader"
	"github.com/pavelanni/labgrader/internal/handler"
	appI18n "github.com/pavelanni/labgrader/internal/i18n"
	"github.com/pavelanni/labgrader/internal/model"
	"github.com/pavelanni/labgrader/internal/session"
	"github.com/pavelanni/labgrader/internal/store"
	"github.com/pavelanni/labgrader/internal/token"
	"github.com/pavelanni/labgrader/internal/validate"
)

// defaultServers are probed in this order when no server is configured.
var defaultServers = []string{
	"http://127.0.0.1:5000",
	"https://us-south.functions.appdomain.cloud/api/v1/web/1d8ef74d-78f2-4214-a876-b8e011a0c87e/default/qgss_grading",
	"https://eu-gb.functions.cloud.ibm.com/api/v1/web/salvador.de.la.puente.gonzalez%40ibm.com_dev/default/qgss_grading",
	"https://salvadelapuente.com:8088",
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "labgrader",
		Short: "Submit and grade quantum computing lab exercises",
	}

	pf := root.PersistentFlags()
	pf.StringSlice("servers", defaultServers, "Candidate grading servers, probed in order")
	pf.String("sentinel-key", model.DefaultSentinelKey, "Index field that identifies a grading server")
	pf.String("sentinel-value", model.DefaultSentinelValue, "Expected value of the sentinel field")
	pf.String("session-file", session.DefaultPath(), "Session cache file")
	pf.Duration("timeout", 0, "HTTP timeout (0 = none)")
	pf.BoolP("quiet", "q", false, "Leave skip reasons and failure causes out of results")
	pf.StringP("lang", "l", "en", "Message language (en, ru)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(gradeCmd(), commitCmd(), sendCmd(), serversCmd(), validateCmd(), fitCmd(), sidebandCmd(), serveCmd(), exportCmd())
	return root
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Check an answer and commit new results",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("answer", "a", "", "Path to the answer JSON document")
	f.StringP("kind", "k", "circuit", "Answer kind (circuit, pulse)")
	f.String("name", "", "Participant name")
	f.String("email", "", "Participant email")
	f.String("lab", "", "Lab identifier")
	f.StringP("exercise", "e", "", "Exercise identifier")
	f.StringP("server", "s", "", "Grading server (skips discovery)")
	f.String("answer-file", "", "Session cache to use instead of --session-file (must exist)")
	f.Bool("force-commit", false, "Commit even when the result did not change")
	return cmd
}

func commitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the answers recorded in the session",
		RunE:  runCommit,
	}
	f := cmd.Flags()
	f.String("lab", "", "Lab identifier")
	f.String("email", "", "Participant email")
	f.StringP("server", "s", "", "Grading server (skips discovery)")
	f.String("answer-file", "", "Session cache to use instead of --session-file (must exist)")
	_ = cmd.MarkFlagRequired("lab")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Upload an exercise source file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}
	cmd.Flags().StringP("server", "s", "", "Grading server (skips discovery)")
	return cmd
}

func serversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Probe the candidate grading servers",
		RunE:  runServers,
	}
	f := cmd.Flags()
	f.String("lab", "", "Only accept servers that validate this lab")
	f.StringP("exercise", "e", "", "Only accept servers that validate this exercise")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the participant name and email",
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.String("name", "", "Participant name")
	f.String("email", "", "Participant email")
	f.Bool("silent", false, "Stop at the first failing check and exit non-zero")
	return cmd
}

func fitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a sinusoid or Lorentzian to two-column CSV data",
		RunE:  runFit,
	}
	f := cmd.Flags()
	f.StringP("model", "m", "sinusoid", "Model (sinusoid, lorentzian)")
	f.StringP("data", "d", "-", "CSV file with x,y columns (- for stdin)")
	f.Float64Slice("init", nil, "Initial parameters, comma separated")
	f.StringP("output", "o", "", "Write x,y,y_fit CSV here")
	_ = cmd.MarkFlagRequired("init")
	return cmd
}

func sidebandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sideband",
		Short: "Modulate pulse samples with a sideband sine",
		RunE:  runSideband,
	}
	f := cmd.Flags()
	f.StringP("data", "d", "-", "CSV file with re,im sample columns (- for stdin)")
	f.Float64("freq", 0, "Sideband frequency in Hz")
	f.Float64("dt", 0, "Sample time in seconds")
	_ = cmd.MarkFlagRequired("freq")
	_ = cmd.MarkFlagRequired("dt")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local grading server backed by answer keys",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.String("addr", "127.0.0.1:5000", "HTTP listen address")
	f.String("db", "labgrader.db", "SQLite database path")
	f.StringSlice("keys", nil, "Paths to answer-key JSON files (repeatable)")
	f.String("session-key", "", "Hex session sealing key, 32 bytes (random if empty)")
	f.Int64("max-file-size", 1<<20, "Largest source file accepted by /send-file, in bytes")
	f.StringSlice("cors-origins", nil, "Browser origins allowed to call the server (e.g. a JupyterLite site)")
	return cmd
}

func logLevel(v *viper.Viper) slog.Level {
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export committed results of the local grading server as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "labgrader.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	handlerOpts := &slog.HandlerOptions{Level: logLevel(v)}
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

	v.SetEnvPrefix("LABGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("labgrader")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/labgrader")
	v.AddConfigPath("/etc/labgrader")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup prepares logging, translations and the config for a command.
func setup(cmd *cobra.Command) (context.Context, *viper.Viper, error) {
	v := viperForCmd(cmd)
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang)), v, nil
}

func newClient(cmd *cobra.Command, v *viper.Viper) *grader.Client {
	return grader.New(grader.Config{
		Servers:       v.GetStringSlice("servers"),
		SentinelKey:   v.GetString("sentinel-key"),
		SentinelValue: v.GetString("sentinel-value"),
		SessionPath:   v.GetString("session-file"),
		HTTPClient:    &http.Client{Timeout: v.GetDuration("timeout")},
		Out:           cmd.OutOrStdout(),
		Quiet:         v.GetBool("quiet"),
	})
}

// identity returns a config value as-is, with empty strings treated as unset.
func identity(v *viper.Viper, key string) any {
	val := v.Get(key)
	if s, ok := val.(string); ok && s == "" {
		return nil
	}
	return val
}

func runGrade(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}

	name, email := identity(v, "name"), identity(v, "email")
	if err := validate.NameEmail(io.Discard, name, email, true); err != nil {
		return err
	}

	var ans any
	if path := v.GetString("answer"); path != "" {
		a, err := answer.Load(path, v.GetString("kind"))
		if err != nil {
			return err
		}
		ans = a
	}

	return newClient(cmd, v).Grade(ctx, grader.GradeRequest{
		Answer:      ans,
		Participant: model.Participant{Name: name.(string), Email: email.(string)},
		LabID:       v.GetString("lab"),
		ExID:        v.GetString("exercise"),
		Server:      strings.TrimRight(v.GetString("server"), "/"),
		AnswerFile:  v.GetString("answer-file"),
		ForceCommit: v.GetBool("force-commit"),
	})
}

func runCommit(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}
	answerFile := v.GetString("answer-file")
	if answerFile == "" {
		answerFile = v.GetString("session-file")
	}
	return newClient(cmd, v).CommitAnswerFile(ctx,
		v.GetString("lab"),
		v.GetString("email"),
		answerFile,
		strings.TrimRight(v.GetString("server"), "/"),
	)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}
	return newClient(cmd, v).SendCode(ctx, args[0], strings.TrimRight(v.GetString("server"), "/"))
}

func runServers(cmd *cobra.Command, _ []string) error {
	ctx, v, err := setup(cmd)
	if err != nil {
		return err
	}
	c := newClient(cmd, v)
	out := cmd.OutOrStdout()

	if len(c.Servers()) == 0 {
		return errors.New("no candidate servers configured (--servers)")
	}
	for _, r := range c.ProbeAll(ctx) {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "✗ %s: %v\n", r.Info.URL, r.Err)
		case !r.Info.Identified:
			fmt.Fprintf(out, "✗ %s: not a grading server\n", r.Info.URL)
		case !r.Info.Restricted:
			fmt.Fprintf(out, "✓ %s\n", r.Info.URL)
		default:
			fmt.Fprintf(out, "✓ %s: %s\n", r.Info.URL, appI18n.Tp(ctx, "ServersAvailable", len(r.Info.Validations)))
		}
	}

	server, ok := c.FindServer(ctx, v.GetString("lab"), v.GetString("exercise"))
	if !ok {
		fmt.Fprintln(out, appI18n.T(ctx, "ServersDown"))
		return nil
	}
	fmt.Fprintln(out, appI18n.Td(ctx, "UsingServer", map[string]any{"Server": server}))
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	_, v, err := setup(cmd)
	if err != nil {
		return err
	}
	return validate.NameEmail(cmd.OutOrStdout(), identity(v, "name"), identity(v, "email"), v.GetBool("silent"))
}

func runFit(cmd *cobra.Command, _ []string) error {
	_, v, err := setup(cmd)
	if err != nil {
		return err
	}
	m, err := fit.ModelByName(v.GetString("model"))
	if err != nil {
		return err
	}

	x, y, err := readColumns(cmd, v.GetString("data"))
	if err != nil {
		return err
	}

	initParams, err := cmd.Flags().GetFloat64Slice("init")
	if err != nil {
		return err
	}
	params, yFit, err := fit.Curve(m, x, y, initParams)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, p := range params {
		fmt.Fprintf(out, "%s = %.9g\n", m.Params[i], p)
	}

	outPath := v.GetString("output")
	if outPath == "" {
		return nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	fmt.Fprintln(f, "x,y,y_fit")
	for i := range x {
		fmt.Fprintf(f, "%g,%g,%g\n", x[i], y[i], yFit[i])
	}
	return nil
}

func runSideband(cmd *cobra.Command, _ []string) error {
	_, v, err := setup(cmd)
	if err != nil {
		return err
	}
	re, im, err := readColumns(cmd, v.GetString("data"))
	if err != nil {
		return err
	}
	samples := make([]complex128, len(re))
	for i := range re {
		samples[i] = complex(re[i], im[i])
	}

	out := cmd.OutOrStdout()
	for _, s := range fit.Sideband(samples, v.GetFloat64("freq"), v.GetFloat64("dt")) {
		fmt.Fprintf(out, "%.12g\n", s)
	}
	return nil
}

// readColumns reads two-column CSV from path, or from stdin for "-".
func readColumns(cmd *cobra.Command, path string) ([]float64, []float64, error) {
	if path == "" || path == "-" {
		return fit.ReadXY(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open data: %w", err)
	}
	defer f.Close()
	return fit.ReadXY(f)
}

func runServe(cmd *cobra.Command, _ []string) error {
	_, v, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadValidations(db, v.GetStringSlice("keys")); err != nil {
		return fmt.Errorf("load answer keys: %w", err)
	}

	sealer, err := token.NewSealerHex(v.GetString("session-key"))
	if err != nil {
		return err
	}
	if v.GetString("session-key") == "" {
		slog.Warn("no --session-key given, sessions will not survive a restart")
	}

	h, err := handler.New(db, sealer, model.ServerConfig{
		SentinelKey:   v.GetString("sentinel-key"),
		SentinelValue: v.GetString("sentinel-value"),
		MaxFileSize:   v.GetInt64("max-file-size"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	reqLogger := httplog.NewLogger("labgrader", httplog.Options{
		JSON:     strings.EqualFold(v.GetString("log-format"), "json"),
		LogLevel: logLevel(v),
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(reqLogger))
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         600,
		}))
	}
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting grading server", "addr", addr, "db", v.GetString("db"), "validations", validationCount(db))
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runExport(cmd *cobra.Command, _ []string) error {
	_, v, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	commits, err := db.ListCommits()
	if err != nil {
		return fmt.Errorf("list commits: %w", err)
	}
	if commits == nil {
		commits = []model.Commit{}
	}

	data, err := json.MarshalIndent(commits, "", "  ")
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
	_, _ = fmt.Fprintln(w)
	return nil
}

// validationCount is the number of answer keys, or 0 with a warning when the
// store cannot count them.
func validationCount(db *store.Store) int {
	count, err := db.ValidationCount()
	if err != nil {
		slog.Warn("error counting answer keys", "error", err)
		return 0
	}
	return count
}
