// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianResearch/services/mission"
	"github.com/AleutianAI/AleutianResearch/services/mission/report"
)

var (
	scopeUser     string
	scopeMission  string
	routeFresh    bool
	routeInternal bool
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print every storage path of a mission",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, mission.ToolManifest, func(ctx context.Context, a *app) (any, error) {
			return a.svc.Manifest(ctx, mission.ScopedRequest{Config: scopeConfig()})
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify, and if needed repair, the mission's final report",
	Long: `Checks that the final report carries a Sources section backing every
inline citation, appending the ledger's sources when it does not. Exits
non-zero when the report still fails after repair.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var verdict report.GateResult
		err := runTool(cmd, mission.ToolVerifyReport, func(ctx context.Context, a *app) (any, error) {
			var err error
			verdict, err = a.svc.VerifyReport(ctx, mission.ScopedRequest{Config: scopeConfig()})
			return verdict, err
		})
		if err != nil {
			return err
		}
		if !verdict.Passed() {
			return fmt.Errorf("final report failed verification: %s", verdict.Reason)
		}
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Recommend a retrieval route for a research query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return runTool(cmd, mission.ToolRouteResearch, func(ctx context.Context, a *app) (any, error) {
			return a.svc.RouteResearch(ctx, mission.RouteRequest{
				Query:          query,
				NeedFreshness:  routeFresh,
				PreferInternal: routeInternal,
			})
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "missionvault %s\n", mission.ServiceVersion)
	},
}

func init() {
	for _, c := range []*cobra.Command{manifestCmd, verifyCmd} {
		c.Flags().StringVar(&scopeUser, "user", "", "User ID")
		c.Flags().StringVar(&scopeMission, "mission", "", "Mission ID")
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("mission")
	}
	routeCmd.Flags().BoolVar(&routeFresh, "fresh", false, "The answer needs up-to-date information")
	routeCmd.Flags().BoolVar(&routeInternal, "internal", false, "Prefer internal knowledge")
}

// scopeConfig builds the runtime config the service resolves a scope from.
func scopeConfig() map[string]any {
	return map[string]any{"metadata": map[string]any{
		"user_id":    scopeUser,
		"mission_id": scopeMission,
	}}
}

// runTool wires an app, runs one operation and prints its JSON result, or
// the error envelope, to stdout.
func runTool(cmd *cobra.Command, tool string, call func(context.Context, *app) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	res, err := call(ctx, a)
	if err != nil {
		env := mission.ToolError(tool, err)
		if encErr := printJSON(cmd.OutOrStdout(), env); encErr != nil {
			return encErr
		}
		return fmt.Errorf("%s: %s", env.ErrorType, env.Message)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
