// RelayX - channel-to-channel message relay
// License: MIT
//
// Copyright (c) 2026 RelayX contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/relayx/cmd/relayx/internal"
	"github.com/tinyland-inc/relayx/cmd/relayx/internal/relay"
	"github.com/tinyland-inc/relayx/cmd/relayx/internal/status"
	"github.com/tinyland-inc/relayx/cmd/relayx/internal/version"
)

func NewRelayxCommand() *cobra.Command {
	short := fmt.Sprintf("%s relayx - channel relay engine v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "relayx",
		Short:   short,
		Example: "relayx relay",
	}

	cmd.AddCommand(
		relay.NewRelayCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewRelayxCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
