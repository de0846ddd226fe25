package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const unitName = "deskrelay.service"

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the systemd user service",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install deskrelay as a systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS != "linux" {
				return fmt.Errorf("unsupported OS: %s (systemd is linux only)", runtime.GOOS)
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			cfgPath, err := filepath.Abs(resolveConfigPath())
			if err != nil {
				return err
			}

			unitPath := systemdUnitPath()
			if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(unitPath, []byte(renderUnit(execPath, cfgPath)), 0o644); err != nil {
				return err
			}

			fmt.Printf("Service installed: %s\n", unitPath)
			fmt.Printf("To start:  systemctl --user start deskrelay\n")
			fmt.Printf("To enable: systemctl --user enable deskrelay\n")
			fmt.Printf("To stop:   systemctl --user stop deskrelay\n")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath := systemdUnitPath()
			if err := os.Remove(unitPath); err != nil {
				return fmt.Errorf("remove unit: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", unitPath)
			fmt.Printf("Run 'systemctl --user daemon-reload' to apply.\n")
			return nil
		},
	})

	return cmd
}

func systemdUnitPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", unitName)
}

func renderUnit(execPath, cfgPath string) string {
	unit := strings.ReplaceAll(systemdTemplate, "{{EXEC}}", execPath)
	return strings.ReplaceAll(unit, "{{CONFIG}}", cfgPath)
}

const systemdTemplate = `[Unit]
Description=deskrelay webhook relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
