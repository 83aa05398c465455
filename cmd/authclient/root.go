package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jrsteele09/go-auth-client/internal/config"
)

// cli carries what every command needs once flags and config are resolved.
type cli struct {
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "authclient",
		Short:         "Sign in to the identity service and manage the local session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.authclient.yml)")
	flags.String(config.KeyGatewayURL, "http://localhost:8000", "Identity service base URL")
	flags.String(config.KeyGatewayPrefix, "/api/v1/auth", "Path the identity service mounts its auth API under")
	flags.Duration(config.KeyGatewayTimeout, 10*time.Second, "Timeout for a single identity service request")
	flags.Bool(config.KeyGatewayBreaker, false, "Fail fast while the identity service keeps failing")
	flags.String(config.KeyOIDCIssuer, "", "Verify ID tokens against this OpenID issuer")
	flags.String(config.KeyOIDCClientID, "", "Expected ID token audience")
	flags.String(config.KeyStoreBackend, config.BackendFile, "Credential store: memory, file, sqlite or redis")
	flags.String(config.KeyStorePath, "", "Credential file or database path")
	flags.String(config.KeyRedisAddr, "localhost:6379", "Redis address for the redis store")
	flags.String(config.KeyRedisPassword, "", "Redis password")
	flags.Int(config.KeyRedisDB, 0, "Redis database number")
	flags.String(config.KeyRedisKey, "authclient:session", "Redis hash holding the session")
	flags.String(config.KeyLogLevel, "info", "Log level")
	flags.String(config.KeyLogFormat, "console", "Log format: console or json")

	rootCmd.AddCommand(
		newSignUpCmd(c),
		newConfirmCmd(c),
		newSignInCmd(c),
		newSignOutCmd(c),
		newWhoAmICmd(c),
		newRefreshCmd(c),
		newRefreshTokenCmd(c),
		newStatusCmd(c),
		newMockIDPCmd(c),
	)
	return rootCmd
}

// initConfig reads in config file and ENV variables if set.
func (c *cli) initConfig(cmd *cobra.Command) error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.AddConfigPath(".")
		c.v.SetConfigType("yaml")
		c.v.SetConfigName(".authclient")
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "[initConfig] read config")
		}
	}

	bindFlags(cmd.Root(), c.v)
	c.cfg = config.New(c.v)
	c.logger = newLogger(c.cfg, cmd.ErrOrStderr())
	log.Logger = c.logger

	if used := c.v.ConfigFileUsed(); used != "" {
		c.logger.Debug().Str("file", used).Msg("Using config file")
	}
	return nil
}

// Bind each cobra flag to its associated viper configuration key. Flags set
// on the command line win over the config file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not bind flag %s: %v\n", f.Name, err)
		}
	})
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.GetLogLevel())
	if cfg.GetLogFormat() == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}
