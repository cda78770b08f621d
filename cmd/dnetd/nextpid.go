package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bamsammich/dnetd/internal/config"
)

func newNextPIDCmd() *cobra.Command {
	var discovery string
	cmd := &cobra.Command{
		Use:   "next-pid",
		Short: "Print the PID the next connection will be handed to",
		Long: `Read a running daemon's discovery file and print the PID currently
published in its next-PID memfd. Attach a debugger to that PID, then connect.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, err := readNextPID(discovery)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&discovery, "discovery", config.DefaultDaemonDiscoveryPath, "daemon discovery file")
	return cmd
}

func readNextPID(discoveryPath string) (int, error) {
	d, err := config.ReadDaemonDiscovery(discoveryPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("no daemon discovery file at %s", discoveryPath)
		}
		return 0, fmt.Errorf("read discovery: %w", err)
	}

	path := d.PidFilePath()
	if path == "" {
		return 0, fmt.Errorf("daemon %d published no next-PID memfd", d.PID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read next-PID memfd: %w", err)
	}

	line := bytes.TrimSpace(bytes.TrimRight(data, "\x00"))
	pid, err := strconv.Atoi(string(line))
	if err != nil {
		return 0, fmt.Errorf("next-PID memfd holds %q: %w", line, err)
	}
	return pid, nil
}
