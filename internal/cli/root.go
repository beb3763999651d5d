package cli

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/modforge/porter/internal/config"
)

// app carries state shared by all subcommands, populated once in the
// root's PersistentPreRunE.
type app struct {
	cfg *config.PorterConfig
	log zerolog.Logger
}

// NewRootCmd builds the porter command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var verbose bool

	root := &cobra.Command{
		Use:           "porter",
		Short:         "Convert Java Edition mods into Bedrock Edition addons",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; it feeds the PORTER_* overrides.
			_ = godotenv.Load()

			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			a.log = zerolog.New(zerolog.ConsoleWriter{
				Out:        cmd.ErrOrStderr(),
				TimeFormat: time.Kitchen,
			}).Level(level).With().Timestamp().Logger()

			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(runCmd(a))
	root.AddCommand(planCmd(a))
	root.AddCommand(historyCmd(a))
	root.AddCommand(configCmd(a))

	return root
}
