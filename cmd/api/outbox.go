package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/repairdesk/api-go/internal/blob"
	"github.com/example/repairdesk/api-go/internal/config"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox [key]",
	Short: "List dropped notification mails, or print one",
	Long: `List the notification mails dropped while SMTP is not configured.
With a key argument the stored message is written to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return showOutbox(cmd.OutOrStdout(), blob.LocalFS{Root: cfg.DataDir}, cfg.MailDropDir, args)
	},
}

func showOutbox(w io.Writer, fs blob.LocalFS, dir string, args []string) error {
	if len(args) == 0 {
		keys, err := fs.List(dir)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}
		return nil
	}
	key := args[0]
	if !fs.Exists(key) {
		return fmt.Errorf("no dropped mail %q", key)
	}
	f, err := fs.Open(key)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func init() {
	rootCmd.AddCommand(outboxCmd)
}
