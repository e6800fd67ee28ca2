// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/threshold"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective threshold rules",
	Long: `Print the threshold rules applied to each motor controller.

Without --rules the built-in rules are shown: FET temperature on every
controller and input voltage on VESC 2. With --rules the file is parsed and
validated first, so this command also checks a rule file before use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules()
		if err != nil {
			return err
		}
		source := "built-in"
		if rulesPath != "" {
			source = rulesPath
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rules: %s\n\n", source)
		printRules(cmd.OutOrStdout(), rules)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func printRules(w io.Writer, rules *threshold.RuleSet) {
	for dev := range threshold.MaxDevices {
		params, _ := rules.Params(dev)
		fmt.Fprintf(w, "%s\n", labelStyle.Render(fmt.Sprintf("VESC[%d]", dev)))
		if len(params) == 0 {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("(no rules)"))
			continue
		}
		for _, p := range params {
			fmt.Fprintf(w, "  %-24s %s\n", p.DisplayName(), threshold.Describe(p.Rule))
		}
	}
}
