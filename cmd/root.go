package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"polychat/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "polychat",
	Short: "Chat with Gemini, Claude, or GPT from the terminal",
	Long: `polychat is a terminal client for remote text-generation services.
Replies stream to the terminal token by token as the provider generates them.

Examples:
  polychat config set google --api-key $GOOGLE_API_KEY --default-model gemini-pro --default
  polychat chat
  polychat message explain the difference between a mutex and a semaphore
  polychat chat --provider openai --model gpt-4o --auto-save`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// API keys are commonly dropped in a .env during development.
		_ = godotenv.Load()
		logging.Init(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(configCmd)
}

// SetVersion records the build version on the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}
