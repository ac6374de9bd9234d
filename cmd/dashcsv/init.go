package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/dashcsv/internal/config"
)

//go:embed templates/dashcsv.yaml
var configTemplate embed.FS

const templatePath = "templates/dashcsv.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a dashcsv configuration file",
		Long: `Init writes a commented .dashcsv configuration file to the current
directory.

The file documents the browser settings, the scrolling limits, the
consolidation defaults, and the CSS selectors used to find panels, menus
and dialogs on dashboards that differ from Kibana's.

Examples:
  # Create .dashcsv in the current directory
  dashcsv init

  # Create the file in the XDG config directory
  dashcsv init --xdg

  # Overwrite an existing file
  dashcsv init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("path", "p", config.DefaultConfigFile, "Path of the configuration file to create")
	cmd.Flags().Bool("xdg", false, "Create config.yaml in the XDG config directory instead")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("path")
	if err != nil {
		return err
	}
	xdgDir, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if xdgDir {
		path = filepath.Join(config.XDGConfigDir(), "config.yaml")
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", path)
	fmt.Fprintln(out, "\nEdit this file to change:")
	fmt.Fprintln(out, "  - the browser binary and window size")
	fmt.Fprintln(out, "  - scrolling limits for large dashboards")
	fmt.Fprintln(out, "  - panel, menu and dialog selectors")
	return nil
}
