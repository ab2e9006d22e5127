package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nda-clarity/internal/config"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/logger"
)

// app carries what every subcommand shares: bound settings and output.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the clarity command tree. Settings resolve from
// flags, then CLARITY_* environment variables, then the config file.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "clarity",
		Short: "Pay-per-document NDA risk review",
		Long: `clarity submits an NDA for review, confirms the payment for it and renders
the resulting risk report. Every state change is kept in a local history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			if a.v.GetBool("no-color") {
				text.DisableColors()
			}
		},
	}

	a.v.SetEnvPrefix("CLARITY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("db", "", "local history database (overrides sqlite_path)")
	flags.String("backend-url", "", "document backend base URL")
	flags.String("payment-api-url", "", "payment processor API base URL")
	flags.String("publishable-key", "", "payment processor publishable key")
	flags.String("log-level", "warn", "log level")
	flags.Bool("json", false, "output JSON")
	flags.Bool("no-color", false, "disable colored output")
	for _, name := range []string{"config", "db", "backend-url", "payment-api-url", "publishable-key", "log-level", "json", "no-color"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(a.analyzeCmd())
	root.AddCommand(a.renderCmd())
	root.AddCommand(a.historyCmd())
	return root
}

// Execute runs the CLI and reports whether it succeeded.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return exitCode(err)
	}
	return 0
}

// exitCode tells scripts which stage failed: 2 submission, 3 payment,
// 4 analysis (money has moved), 1 anything else.
func exitCode(err error) int {
	switch {
	case domain.IsStage(err, domain.StageSubmission):
		return 2
	case domain.IsStage(err, domain.StagePayment):
		return 3
	case domain.IsStage(err, domain.StageAnalysis):
		return 4
	default:
		return 1
	}
}

func (a *app) config() (config.Config, error) {
	cfg, err := config.LoadFile(a.v.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	override := func(dst *string, key string) {
		if v := a.v.GetString(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.SQLitePath, "db")
	override(&cfg.BackendBaseURL, "backend-url")
	override(&cfg.PaymentAPIBaseURL, "payment-api-url")
	override(&cfg.PaymentPublishableKey, "publishable-key")
	return cfg, nil
}

// logger writes to stderr so rendered reports stay clean on stdout.
func (a *app) logger(cfg config.Config) (*logrus.Logger, error) {
	l, err := logger.New(a.v.GetString("log-level"), cfg.LogFile)
	if err != nil {
		return nil, err
	}
	if cfg.LogFile == "" {
		l.SetOutput(a.errOut)
	}
	return l, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
