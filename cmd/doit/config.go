package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spetr/doit/internal/config"
)

func addConfigCommands(root *cobra.Command) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return runConfigInit(force)
		},
	}
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing configuration")

	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)

	excludeCmd := &cobra.Command{
		Use:   "exclude",
		Short: "Manage custom exclude patterns",
	}

	excludeAddCmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Exclude files matching a pattern (* matches anything)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExcludeAdd(args[0])
		},
	}

	excludeListCmd := &cobra.Command{
		Use:   "list",
		Short: "List custom exclude patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Scan.Exclude) == 0 {
				fmt.Println(mutedStyle.Render("No custom exclude patterns"))
				return nil
			}
			for _, p := range cfg.Scan.Exclude {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	excludeCmd.AddCommand(excludeAddCmd, excludeListCmd)

	root.AddCommand(configCmd, excludeCmd)
}

func runConfigInit(force bool) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	path := config.ConfigPath(root)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(root, config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Created config at %s\n", path)
	return nil
}

func runExcludeAdd(pattern string) error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	added, err := cfg.AddExclude(pattern)
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("Pattern %q is already excluded\n", pattern)
		return nil
	}

	if err := config.Save(root, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Excluded %q\n", pattern)
	return nil
}
