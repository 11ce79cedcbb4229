package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/results/internal/handler"
	appI18n "github.com/pavelanni/results/internal/i18n"
	"github.com/pavelanni/results/internal/metrics"
	"github.com/pavelanni/results/internal/model"
	"github.com/pavelanni/results/internal/photo"
	"github.com/pavelanni/results/internal/results"
	"github.com/pavelanni/results/internal/store"
)

const defaultAdminUsername = "admin"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "results",
		Short: "Exam results publisher with an admin console",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), adminCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `results --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":5000", "HTTP listen address")
	f.String("db", "results.db", "SQLite database path")
	f.String("upload-dir", "uploads/photos", "Directory for uploaded student photos")
	f.Int64("max-upload-mb", 16, "Maximum size of an add request with a photo, in MiB")
	f.StringSlice("allowed-ext", photo.DefaultAllowedExt, "Accepted photo file extensions")
	f.String("session-secret", "", "Key for signing session cookies (random per start if empty)")
	f.Bool("secure-cookies", false, "Set Secure flag on cookies")
	f.String("public-url", "", "Base URL used in lookup links (derived from the request if empty)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call /api from a browser")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("admin-password", "admin123", "Password for the default admin seeded into an empty database")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all students as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "results.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the administrator account",
	}

	passwd := &cobra.Command{
		Use:   "passwd",
		Short: "Set an administrator password, creating the account if needed",
		RunE:  runAdminPasswd,
	}
	f := passwd.Flags()
	f.String("db", "results.db", "SQLite database path")
	f.StringP("username", "u", defaultAdminUsername, "Administrator username")
	f.StringP("password", "p", "", "New password (required)")
	addLogFlags(passwd)
	_ = passwd.MarkFlagRequired("password")

	cmd.AddCommand(passwd)
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

	v.SetEnvPrefix("RESULTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("results")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/results")
	v.AddConfigPath("/etc/results")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	photos, err := photo.NewSaver(v.GetString("upload-dir"), v.GetStringSlice("allowed-ext"))
	if err != nil {
		return fmt.Errorf("prepare upload dir: %w", err)
	}

	secret := v.GetString("session-secret")
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		slog.Warn("no session-secret configured, sessions will not survive a restart")
	}

	cfg := model.ServerConfig{
		PublicURL:     v.GetString("public-url"),
		UploadDir:     photos.Dir(),
		MaxUploadSize: v.GetInt64("max-upload-mb") << 20,
		SessionSecret: secret,
		SecureCookies: v.GetBool("secure-cookies"),
	}

	svc := results.NewService(db, photos)
	h, err := handler.New(db, svc, results.NewAuthenticator(db, svc), metrics.New(), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}).Handler)
	}
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"upload_dir", cfg.UploadDir,
		"public_url", cfg.PublicURL,
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := results.NewService(db, nil).ExportCSV(cmd.Context(), w)
	if err != nil {
		return err
	}
	slog.Info("exported students", "rows", n, "output", outPath)
	return nil
}

func runAdminPasswd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	password := v.GetString("password")
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters long")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hash, err := results.HashPassword(password)
	if err != nil {
		return err
	}

	username := v.GetString("username")
	admin, err := db.GetAdminByUsername(username)
	if err != nil {
		return fmt.Errorf("get admin: %w", err)
	}
	if admin == nil {
		if _, err := db.CreateAdmin(model.Admin{Username: username, PasswordHash: hash}); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		return nil
	}

	if err := db.UpdateAdminPassword(admin.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := db.DeleteAdminSessions(admin.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	slog.Info("admin password updated", "username", username)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.AdminCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or RESULTS_ADMIN_PASSWORD env var")
	}

	hash, err := results.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := db.CreateAdmin(model.Admin{Username: defaultAdminUsername, PasswordHash: hash}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", defaultAdminUsername)
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
