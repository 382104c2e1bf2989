package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"polychat/internal/config"
	"polychat/internal/secrets"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage provider configuration",
}

var (
	setKind           string
	setAPIKey         string
	setServiceAccount string
	setBaseURL        string
	setDefaultModel   string
	setDefault        bool
	setEncrypt        bool
	setSecretEnv      string
)

var configSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Save provider credentials and defaults",
	Long: `Save a named provider entry. The kind (google, anthropic, openai) is
inferred from the name when obvious; otherwise pass --kind.

With --encrypt the API key is sealed with a passphrase read from
POLYCHAT_PASSPHRASE (or the variable named by --secret-env) before it is
written to disk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		kind, ok := config.InferKind(setKind)
		if setKind == "" {
			kind, ok = config.InferKind(name)
		}
		if !ok {
			return fmt.Errorf("unable to infer provider kind from %q: pass --kind google|anthropic|openai", name)
		}

		if kind != config.KindGoogle && setAPIKey == "" {
			return fmt.Errorf("--api-key is required for %s providers", kind)
		}
		if setServiceAccount != "" && kind != config.KindGoogle {
			return fmt.Errorf("--service-account only applies to google providers")
		}

		entry := &config.Provider{
			Kind:               kind,
			ServiceAccountFile: setServiceAccount,
			BaseURL:            setBaseURL,
			DefaultModel:       setDefaultModel,
		}
		if setEncrypt && setAPIKey != "" {
			passphrase, err := secrets.PassphraseFromEnv(setSecretEnv)
			if err != nil {
				return err
			}
			sealed, err := secrets.Encrypt(passphrase, setAPIKey)
			if err != nil {
				return err
			}
			entry.EncryptedAPIKey = sealed
		} else {
			entry.APIKey = setAPIKey
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Providers[name] = entry
		if setDefault {
			cfg.DefaultProvider = name
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Saved provider %q\n", name)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove a provider entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if _, ok := cfg.Providers[name]; !ok {
			fmt.Printf("Provider %q not found\n", name)
			return nil
		}
		delete(cfg.Providers, name)
		if cfg.DefaultProvider == name {
			cfg.DefaultProvider = ""
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Removed provider %q\n", name)
		return nil
	},
}

func init() {
	f := configSetCmd.Flags()
	f.StringVar(&setKind, "kind", "", "Provider kind: google, anthropic, or openai")
	f.StringVar(&setAPIKey, "api-key", "", "API key for the provider")
	f.StringVar(&setServiceAccount, "service-account", "", "Service-account JSON file for OAuth bearer auth (google only)")
	f.StringVar(&setBaseURL, "base-url", "", "Custom base URL (enterprise deployments)")
	f.StringVar(&setDefaultModel, "default-model", "", "Default model for this provider")
	f.BoolVar(&setDefault, "default", false, "Mark this provider as the default")
	f.BoolVar(&setEncrypt, "encrypt", false, "Encrypt the API key at rest")
	f.StringVar(&setSecretEnv, "secret-env", "", "Environment variable holding the encryption passphrase")

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configRemoveCmd)
}
