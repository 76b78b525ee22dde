package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smpn3pacet/jadwal/internal/ui"
)

// configView is the effective configuration as shown by "config show".
type configView struct {
	ConfigDir      string `yaml:"config_dir"`
	Backend        string `yaml:"backend"`
	Endpoint       string `yaml:"endpoint"`
	EndpointSource string `yaml:"endpoint_source"`
	Role           string `yaml:"role"`
	User           string `yaml:"user,omitempty"`
	Debounce       string `yaml:"debounce"`
	WriteTimeout   string `yaml:"write_timeout"`
	Retry          struct {
		Attempts uint   `yaml:"attempts"`
		Delay    string `yaml:"delay"`
	} `yaml:"retry"`
	Subscribe      bool   `yaml:"subscribe"`
	PollInterval   string `yaml:"poll_interval"`
	DataDir        string `yaml:"data_dir"`
	AssistantModel string `yaml:"assistant_model"`
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "sync",
	Short:   "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, resolver, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		endpoint, layer := resolver.Resolve()

		view := configView{
			ConfigDir:      cfg.Dir,
			Backend:        cfg.Backend,
			Endpoint:       endpoint,
			EndpointSource: string(layer),
			Role:           cfg.Role,
			User:           cfg.User,
			Debounce:       cfg.Debounce.String(),
			WriteTimeout:   cfg.WriteTimeout.String(),
			Subscribe:      cfg.Subscribe,
			PollInterval:   cfg.PollInterval.String(),
			DataDir:        cfg.DataDir,
			AssistantModel: cfg.AssistantModel,
		}
		view.Retry.Attempts = cfg.RetryAttempts
		view.Retry.Delay = cfg.RetryDelay.String()

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			fatalf("failed to encode config: %v", err)
		}
		_ = enc.Close()
	},
}

var configSetEndpointCmd = &cobra.Command{
	Use:   "set-endpoint [url]",
	Short: "Set or clear the runtime endpoint override",
	Long: `Set the endpoint override, which takes precedence over the endpoint from
config.yaml or the environment. The override is stored in .jadwal/endpoint,
so a running "jadwal watch" picks it up immediately.

  jadwal config set-endpoint https://script.google.com/macros/s/.../exec
  jadwal config set-endpoint http://localhost:8080
  jadwal config set-endpoint --clear`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		clearOverride, _ := cmd.Flags().GetBool("clear")
		if clearOverride == (len(args) == 1) {
			fatalf("give either a URL or --clear")
		}

		_, resolver, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		value := ""
		if !clearOverride {
			value = args[0]
		}
		if err := resolver.SetOverride(value); err != nil {
			fatalf("%v", err)
		}

		endpoint, layer := resolver.Resolve()
		if endpoint == "" {
			endpoint = "(none)"
		}
		fmt.Printf("%s Endpoint: %s %s\n", ui.RenderPass("✓"), endpoint, ui.RenderMuted("("+string(layer)+")"))
	},
}

func init() {
	configSetEndpointCmd.Flags().Bool("clear", false, "Remove the override")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetEndpointCmd)
	rootCmd.AddCommand(configCmd)
}
