package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"
)

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify tracestat is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify tracestat is properly configured.

This command checks:
  - Binary location and permissions
  - MCP client configuration (a "tracestat" server entry)
  - tracestat config files (.tracestat.json, ~/.config/tracestat/config.json)
  - Optional tools for sending test data (tracestat-sendtest, otel-cli)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDoctorWithUtils(os.Stdout, version, &realFsUtils{})
		},
	}
}

type checkStatus string

const (
	statusPass checkStatus = "pass"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

func (s checkStatus) icon() string {
	switch s {
	case statusPass:
		return "✓"
	case statusWarn:
		return "⚠"
	default:
		return "✗"
	}
}

type checkResult struct {
	Name       string
	Status     checkStatus
	Message    string
	Suggestion string
}

func pass(name, format string, args ...any) checkResult {
	return checkResult{Name: name, Status: statusPass, Message: fmt.Sprintf(format, args...)}
}

func warn(name, message, suggestion string) checkResult {
	return checkResult{Name: name, Status: statusWarn, Message: message, Suggestion: suggestion}
}

func fail(name, message, suggestion string) checkResult {
	return checkResult{Name: name, Status: statusFail, Message: message, Suggestion: suggestion}
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
	LookPath(file string) (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }
func (r *realFsUtils) LookPath(file string) (string, error)  { return exec.LookPath(file) }

func runDoctorWithUtils(w io.Writer, version string, utils fsUtils) error {
	fmt.Fprintf(w, "🔍 tracestat doctor v%s\n\n", version)

	checks := []func(utils fsUtils) checkResult{
		checkBinary,
		checkMCPConfig,
		checkTracestatConfig,
		checkSendTools,
	}

	var fails, warns int
	for _, check := range checks {
		result := check(utils)
		fmt.Fprintf(w, "%s %s\n", result.Status.icon(), result.Message)
		if result.Suggestion != "" {
			fmt.Fprintf(w, "  %s\n", result.Suggestion)
		}
		switch result.Status {
		case statusFail:
			fails++
		case statusWarn:
			warns++
		}
	}

	fmt.Fprintln(w)
	if fails > 0 {
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", fails)
		if warns > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", warns)
		}
		return fmt.Errorf("found %d issues that need attention", fails)
	}

	if warns > 0 {
		fmt.Fprintf(w, "✅ All critical checks passed!\n")
		fmt.Fprintf(w, "⚠️  %d optional warning(s)\n", warns)
	} else {
		fmt.Fprintf(w, "✅ All checks passed!\n")
	}
	fmt.Fprintf(w, "💡 Run 'tracestat serve --verbose' to start the server\n")
	return nil
}

// executablePath returns the absolute path of the running binary.
func executablePath(utils fsUtils) (string, error) {
	executable, err := utils.Executable()
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(executable); err == nil {
		return abs, nil
	}
	return executable, nil
}

// checkBinary verifies the binary can be located and executed.
func checkBinary(utils fsUtils) checkResult {
	executable, err := executablePath(utils)
	if err != nil {
		return fail("binary", "Could not determine binary location", fmt.Sprintf("Error: %v", err))
	}

	info, err := utils.Stat(executable)
	if err != nil || info == nil {
		return fail("binary", "Could not stat binary "+executable, fmt.Sprintf("Error: %v", err))
	}
	if info.Mode()&0111 == 0 {
		return fail("binary", "Binary is not executable: "+executable, "Run: chmod +x "+executable)
	}

	return pass("binary", "Binary: %s", executable)
}

// mcpClientConfig is the part of an agent's settings file listing MCP servers.
type mcpClientConfig struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// checkMCPConfig looks for an agent settings file with a tracestat entry that
// runs this binary's serve command.
func checkMCPConfig(utils fsUtils) checkResult {
	paths := getMCPConfigPaths(utils)
	configPath := firstExisting(utils, paths)
	executable, _ := executablePath(utils)

	if configPath == "" {
		var b strings.Builder
		b.WriteString("MCP config not found. Checked:\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
		fmt.Fprintf(&b, `
  Add a server entry to your agent's MCP settings:
  {
    "mcpServers": {
      "tracestat": {
        "command": "%s",
        "args": ["serve", "--verbose"]
      }
    }
  }`, executable)
		return fail("mcp_config", "MCP config not found", b.String())
	}

	data, err := utils.ReadFile(configPath)
	if err != nil {
		return fail("mcp_config", "Could not read MCP config", fmt.Sprintf("Error reading %s: %v", configPath, err))
	}

	var config mcpClientConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fail("mcp_config", "MCP config is not valid JSON", fmt.Sprintf("Error parsing %s: %v", configPath, err))
	}

	found := fmt.Sprintf("%s config found: %s", agentName(configPath), configPath)

	entry, ok := config.MCPServers["tracestat"]
	if !ok {
		return warn("mcp_config", found, "Config does not contain a 'tracestat' server entry, add one to use the usage tools")
	}
	if entry.Command != "" && entry.Command != executable {
		return warn("mcp_config", found, fmt.Sprintf(
			"Config path (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
			entry.Command, executable))
	}
	if !slices.Contains(entry.Args, "serve") {
		return warn("mcp_config", found, "The tracestat entry does not run 'serve', add it to args")
	}

	return pass("mcp_config", "%s", found)
}

func agentName(configPath string) string {
	switch {
	case strings.Contains(configPath, "claude-code"), strings.Contains(configPath, ".claude"):
		return "Claude Code"
	case strings.Contains(configPath, ".gemini"):
		return "Gemini CLI"
	}
	return "MCP agent"
}

// checkTracestatConfig layers the global and project config files over the
// defaults, the same way serve does, and validates the result.
func checkTracestatConfig(utils fsUtils) checkResult {
	var found []string
	cfg := DefaultConfig()
	for _, path := range getTracestatConfigPaths(utils) {
		data, err := utils.ReadFile(path)
		if err != nil {
			continue
		}
		var layer Config
		if err := json.Unmarshal(data, &layer); err != nil {
			return fail("tracestat_config", "tracestat config is not valid JSON", fmt.Sprintf("Error parsing %s: %v", path, err))
		}
		cfg = MergeConfigs(cfg, &layer)
		found = append(found, path)
	}

	if err := cfg.Validate(); err != nil {
		return fail("tracestat_config", "tracestat config is invalid", err.Error())
	}

	if len(found) == 0 {
		return pass("tracestat_config", "No tracestat config file, using defaults (org %q, %d projects)", cfg.Org, len(cfg.Projects))
	}
	return pass("tracestat_config", "tracestat config: %s (org %q, %d projects)", strings.Join(found, ", "), cfg.Org, len(cfg.Projects))
}

// getTracestatConfigPaths returns the global then project config paths,
// in the order they are layered.
func getTracestatConfigPaths(utils fsUtils) []string {
	var paths []string
	if home, err := utils.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tracestat", "config.json"))
	}
	if cwd, err := utils.Getwd(); err == nil && cwd != "" {
		paths = append(paths, filepath.Join(cwd, ".tracestat.json"))
	}
	return paths
}

// checkSendTools looks for something that can send test data.
func checkSendTools(utils fsUtils) checkResult {
	for _, tool := range []string{"tracestat-sendtest", "otel-cli"} {
		if path, err := utils.LookPath(tool); err == nil {
			return pass("send_tools", "Optional: %s found at %s", tool, path)
		}
	}

	return warn("send_tools", "Optional: no test data sender found",
		`tracestat-sendtest sends a sample trace and outcomes to the receiver.
  Install with: go install github.com/tobert/tracestat/cmd/tracestat-sendtest@latest
  otel-cli also works for spans: go install github.com/tobert/otel-cli@latest`)
}

// getMCPConfigPaths returns possible MCP config file paths for various agents,
// project-level first.
func getMCPConfigPaths(utils fsUtils) []string {
	homeDir, err := utils.UserHomeDir()
	if err != nil {
		return nil
	}

	var paths []string
	if cwd, _ := utils.Getwd(); cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".gemini", "settings.json"), // Gemini CLI (per-project)
			filepath.Join(cwd, ".claude", "settings.json"), // Claude (if per-project exists)
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude Code", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "claude-code", "mcp_settings.json"))
	}

	return paths
}

func firstExisting(utils fsUtils, paths []string) string {
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
