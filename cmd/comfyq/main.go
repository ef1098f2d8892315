package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func main() {
	baseURL := getenv("COMFYQ_BASE_URL", "http://localhost:9000")
	token := getenv("COMFYQ_TOKEN", "")
	profileName := getenv("COMFYQ_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "comfyq",
		Short: "comfyq CLI",
		Long:  "comfyq CLI for listing tools, running workflows and inspecting invocations.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL of the comfyq server")
	root.PersistentFlags().StringVar(&token, "token", token, "Bearer token")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("COMFYQ_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("token") {
			if v := strings.TrimSpace(os.Getenv("COMFYQ_TOKEN")); v != "" {
				token = v
			} else if prof.Token != "" {
				token = prof.Token
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(toolsCmd(&baseURL, &token, ui))
	root.AddCommand(invokeCmd(&baseURL, &token, ui))
	root.AddCommand(invocationCmd(&baseURL, &token, ui))
	root.AddCommand(modelsCmd(&baseURL, &token, ui))
	root.AddCommand(batchCmd(&baseURL, &token, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func helpTemplate(ui *ui) string {
	title := ui.title("comfyq")
	return fmt.Sprintf(`%s: CLI for the comfyq workflow server

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  comfyq init
  comfyq tools list
  comfyq invoke generate_image --param prompt="a lighthouse at dusk" --param width=768
  comfyq invoke generate_video --param prompt="waves" --stream
  comfyq invoke generate_video --param prompt="waves" --async --webhook https://hooks.example.com/comfyq
  comfyq batch generate_image --prompts-file prompts.txt

`, title, configPath())
}
