// Package cli implements helpdeskctl, the terminal client for the helpdesk
// API: sign-in, ticket submission, and the user and admin dashboards.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/it-helpdesk/internal/client"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/session"
)

const appName = "helpdeskctl"

// errNotSignedIn is returned by commands that need a session.
var errNotSignedIn = errors.New("not signed in, run `helpdeskctl login`")

// env is the state shared by every command of one invocation.
type env struct {
	v       *viper.Viper
	out     io.Writer
	in      io.Reader
	logger  *zap.Logger
	api     *client.Client
	session *session.Context
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand(os.Stdin, os.Stdout).Execute()
}

// NewRootCommand builds the command tree reading prompts from in and writing
// to out.
func NewRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	e := &env{v: viper.New(), in: in, out: out}
	var cfgFile string

	root := &cobra.Command{
		Use:           appName,
		Short:         "IT helpdesk command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.init(cmd.Context(), cfgFile)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.session != nil {
				e.session.Dispose()
			}
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.helpdeskctl.yaml)")
	flags.String("api-url", "http://localhost:8080", "helpdesk API URL")
	flags.String("output", "table", "output format (table, json)")
	flags.Bool("verbose", false, "log client activity to stderr")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	_ = e.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = e.v.BindPFlag("output", flags.Lookup("output"))
	_ = e.v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = e.v.BindPFlag("timeout", flags.Lookup("timeout"))

	root.AddCommand(
		e.loginCommand(),
		e.logoutCommand(),
		e.whoamiCommand(),
		e.passwordCommand(),
		e.ticketsCommand(),
		e.adminCommand(),
	)
	return root
}

func (e *env) init(ctx context.Context, cfgFile string) error {
	if cfgFile != "" {
		e.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		e.v.AddConfigPath(home)
		e.v.SetConfigType("yaml")
		e.v.SetConfigName("." + appName)
	}
	e.v.SetEnvPrefix("HELPDESK")
	e.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	e.v.AutomaticEnv()
	if err := e.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	e.logger = newLogger(e.v.GetBool("verbose"))
	e.api = client.New(e.v.GetString("api_url"), client.Options{
		Timeout: e.v.GetDuration("timeout"),
		Logger:  e.logger,
	})
	e.session = session.NewContext(session.Options{
		Store:         session.FileStore{Path: e.sessionFile()},
		Marker:        session.FileMarker{Path: session.RuntimeMarkerPath(appName)},
		Authenticator: e.api,
		Logger:        e.logger,
	})
	e.api.UseCredentials(e.session)

	if _, err := e.session.Load(ctx); err != nil {
		e.logger.Warn("stored session unreadable", zap.Error(err))
	}
	return nil
}

func (e *env) sessionFile() string {
	if path := e.v.GetString("session_file"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appName, "session.json")
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// requireSession returns the signed-in session.
func (e *env) requireSession() (*domain.Session, error) {
	snap := e.session.Current()
	if !snap.Authenticated() {
		return nil, errNotSignedIn
	}
	return snap.Session, nil
}

func (e *env) jsonOutput() bool {
	return e.v.GetString("output") == "json"
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}
