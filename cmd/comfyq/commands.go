package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL  string
		token    string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:9000"
			}
			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				if token == "" {
					token = prompt(reader, "Token (optional)", "")
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the comfyq server")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var token string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store a token in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("--token is required")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.Token = strings.TrimSpace(token)
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&token, "token", "", "Bearer token")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s %s\n", ui.title("Profile:"), active)
			fmt.Printf("  %s %s\n", ui.dim("config:"), cfgPath)
			fmt.Printf("  %s %s\n", ui.dim("baseUrl:"), prof.BaseURL)
			fmt.Printf("  %s %s\n", ui.dim("token:"), maskToken(prof.Token))
			return nil
		},
	}

	auth.AddCommand(set, show)
	return auth
}

func toolsCmd(baseURL, token *string, ui *ui) *cobra.Command {
	tools := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool table",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token)
			var (
				status int
				resp   []byte
			)
			err := withSpinner("Fetching tools...", func() (err error) {
				status, resp, err = c.request(http.MethodGet, "/v1/tools", nil)
				return err
			})
			if err != nil {
				return err
			}
			if status >= 300 {
				return statusError(status, resp)
			}
			var out struct {
				Tools []struct {
					Name        string `json:"name"`
					Template    string `json:"template"`
					Description string `json:"description"`
					Output      struct {
						Kind string `json:"kind"`
					} `json:"output"`
				} `json:"tools"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				printJSON(resp)
				return nil
			}
			for _, t := range out.Tools {
				fmt.Printf("%s %s %s\n  %s\n", ui.title(t.Name), ui.info("["+t.Output.Kind+"]"), ui.dim(t.Template), t.Description)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a tool definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token)
			status, resp, err := c.request(http.MethodGet, "/v1/tools/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return statusError(status, resp)
			}
			printJSON(resp)
			return nil
		},
	}

	tools.AddCommand(list, show)
	return tools
}

func invokeCmd(baseURL, token *string, ui *ui) *cobra.Command {
	var (
		paramKVs   []string
		paramsJSON string
		stream     bool
		async      bool
		webhook    string
	)
	cmd := &cobra.Command{
		Use:     "invoke <tool>",
		Short:   "Run a tool",
		Example: "comfyq invoke generate_image --param prompt=\"a cat\" --param width=768",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stream && async {
				return errors.New("--stream and --async are mutually exclusive")
			}
			params, err := buildParams(paramsJSON, paramKVs)
			if err != nil {
				return err
			}
			c := newClient(*baseURL, *token)
			tool := url.PathEscape(args[0])

			switch {
			case stream:
				return c.stream("/v1/tools/"+tool+"/stream", params, func(ev map[string]any) {
					printEvent(ui, ev)
				})
			case async:
				body := map[string]any{"params": params}
				if webhook != "" {
					body["webhook"] = webhook
				}
				status, resp, err := c.request(http.MethodPost, "/v1/tools/"+tool+"/invocations", body)
				if err != nil {
					return err
				}
				if status >= 300 {
					return statusError(status, resp)
				}
				var out struct {
					ID string `json:"id"`
				}
				_ = json.Unmarshal(resp, &out)
				fmt.Printf("%s Invocation accepted: %s\n", ui.ok("[OK]"), out.ID)
				return nil
			}

			var (
				status int
				resp   []byte
			)
			err = withSpinner("Running "+args[0]+"...", func() (err error) {
				status, resp, err = c.request(http.MethodPost, "/v1/tools/"+tool, params)
				return err
			})
			if err != nil {
				return err
			}
			if status >= 300 {
				return statusError(status, resp)
			}
			printResult(ui, resp)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&paramKVs, "param", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "", "Parameters as a JSON object")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream progress events")
	cmd.Flags().BoolVar(&async, "async", false, "Run in the background and return the invocation id")
	cmd.Flags().StringVar(&webhook, "webhook", "", "Completion webhook URL (with --async)")
	return cmd
}

func invocationCmd(baseURL, token *string, ui *ui) *cobra.Command {
	inv := &cobra.Command{
		Use:   "invocation",
		Short: "Inspect the invocation ledger",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token)
			status, resp, err := c.request(http.MethodGet, "/v1/invocations/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return statusError(status, resp)
			}
			printJSON(resp)
			return nil
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List pending and running invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token)
			status, resp, err := c.request(http.MethodGet, "/v1/invocations?limit="+strconv.Itoa(limit), nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return statusError(status, resp)
			}
			var out struct {
				Invocations []struct {
					ID     string `json:"id"`
					Tool   string `json:"tool"`
					Status string `json:"status"`
				} `json:"invocations"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				printJSON(resp)
				return nil
			}
			if len(out.Invocations) == 0 {
				fmt.Println(ui.dim("no active invocations"))
			}
			for _, i := range out.Invocations {
				fmt.Printf("%s %s %s\n", i.ID, ui.title(i.Tool), ui.warn(i.Status))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "Maximum entries")

	inv.AddCommand(get, list)
	return inv
}

func modelsCmd(baseURL, token *string, ui *ui) *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Checkpoint models known to the engine",
	}
	run := func(method, path, suffix string) error {
		c := newClient(*baseURL, *token)
		var (
			status int
			resp   []byte
		)
		err := withSpinner(suffix, func() (err error) {
			status, resp, err = c.request(method, path, nil)
			return err
		})
		if err != nil {
			return err
		}
		if status >= 300 {
			return statusError(status, resp)
		}
		var out struct {
			Models []string `json:"models"`
		}
		if err := json.Unmarshal(resp, &out); err != nil {
			printJSON(resp)
			return nil
		}
		if len(out.Models) == 0 {
			fmt.Println(ui.warn("engine reported no models"))
		}
		for _, m := range out.Models {
			fmt.Println(m)
		}
		return nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cached models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(http.MethodGet, "/v1/models", "Fetching models...")
		},
	}
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch models from the engine (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(http.MethodPost, "/v1/models/refresh", "Refreshing models...")
		},
	}

	models.AddCommand(list, refresh)
	return models
}

func batchCmd(baseURL, token *string, ui *ui) *cobra.Command {
	var (
		promptsFile string
		paramName   string
		paramKVs    []string
	)
	cmd := &cobra.Command{
		Use:     "batch <tool>",
		Short:   "Run a tool once per prompt, sequentially",
		Example: "comfyq batch generate_image --prompts-file prompts.txt --param width=768",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := readPrompts(promptsFile)
			if err != nil {
				return err
			}
			if len(prompts) == 0 {
				return errors.New("prompts file has no prompts")
			}
			base, err := buildParams("", paramKVs)
			if err != nil {
				return err
			}
			c := newClient(*baseURL, *token)

			bar := progressbar.NewOptions(len(prompts),
				progressbar.OptionSetDescription("Running "+args[0]),
				progressbar.OptionSetWidth(18),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			type outcome struct {
				prompt string
				line   string
				failed bool
			}
			var results []outcome
			for _, p := range prompts {
				params := make(map[string]any, len(base)+1)
				for k, v := range base {
					params[k] = v
				}
				params[paramName] = p

				status, resp, err := c.request(http.MethodPost, "/v1/tools/"+url.PathEscape(args[0]), params)
				switch {
				case err != nil:
					results = append(results, outcome{prompt: p, line: err.Error(), failed: true})
				case status >= 300:
					results = append(results, outcome{prompt: p, line: statusError(status, resp).Error(), failed: true})
				default:
					results = append(results, outcome{prompt: p, line: resultURL(resp)})
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			failed := 0
			for _, r := range results {
				if r.failed {
					failed++
					fmt.Printf("%s %s\n  %s\n", ui.err("[FAIL]"), r.prompt, r.line)
					continue
				}
				fmt.Printf("%s %s\n  %s\n", ui.ok("[OK]"), r.prompt, r.line)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d prompts failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&promptsFile, "prompts-file", "", "File with one prompt per line")
	cmd.Flags().StringVar(&paramName, "prompt-param", "prompt", "Parameter that receives each prompt")
	cmd.Flags().StringArrayVar(&paramKVs, "param", nil, "Extra parameter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("prompts-file")
	return cmd
}

// buildParams merges a JSON object with key=value pairs. Values that parse as
// JSON numbers or booleans keep that type; everything else is a string.
func buildParams(rawJSON string, kvs []string) (map[string]any, error) {
	params := map[string]any{}
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &params); err != nil {
			return nil, fmt.Errorf("invalid --params-json: %w", err)
		}
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param: %s (expected key=value)", kv)
		}
		params[k] = paramValue(v)
	}
	return params, nil
}

func paramValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
		return b
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) && strings.TrimSpace(v) == v {
		return n
	}
	return v
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func resultURL(body []byte) string {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return string(body)
	}
	for _, k := range []string{"image_url", "video_url"} {
		if v, ok := out[k].(string); ok {
			return v
		}
	}
	return string(body)
}

func printResult(ui *ui, body []byte) {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Printf("%s %s\n", ui.ok("[OK]"), resultURL(body))
	if id, ok := out["invocation_id"].(string); ok {
		fmt.Printf("  %s %s\n", ui.dim("invocation:"), id)
	}
	if id, ok := out["prompt_id"].(string); ok {
		fmt.Printf("  %s %s\n", ui.dim("prompt:"), id)
	}
}

func printEvent(ui *ui, ev map[string]any) {
	status, _ := ev["status"].(string)
	switch status {
	case "complete":
		b, _ := json.Marshal(ev["result"])
		fmt.Printf("%s %s\n", ui.ok("[complete]"), resultURL(b))
	case "error":
		fmt.Printf("%s %v\n", ui.err("[error]"), ev["error"])
	default:
		line := ui.info("[" + status + "]")
		if msg, ok := ev["message"].(string); ok && msg != "" {
			line += " " + msg
		}
		if id, ok := ev["prompt_id"].(string); ok && id != "" {
			line += " " + ui.dim(id)
		}
		fmt.Println(line)
	}
}
