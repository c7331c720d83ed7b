package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gophersatwork/compcache"
	"github.com/spf13/cobra"
)

func newKeyCmd(a *app) *cobra.Command {
	var desc compcache.WorkDescriptor

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the fingerprint of a unit of work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.cache(cmd)
			if err != nil {
				return err
			}
			desc.ProjectRoot = a.root
			fp, err := c.Fingerprint(desc)
			if err != nil {
				return &runtimeError{err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc.SourceRoot, "source-root", ".", "Source root, relative to the project root")
	cmd.Flags().StringVar(&desc.Action, "action", "", "Name of the computation")
	cmd.Flags().StringVar(&desc.InterpreterVersion, "python", "", "Interpreter version")
	cmd.Flags().StringArrayVar(&desc.FileDependencies, "file-dep", nil, "File dependency glob, relative to the project root (repeatable)")
	cmd.Flags().StringArrayVar(&desc.EnvDependencies, "env-dep", nil, "Environment variable dependency (repeatable)")
	cmd.Flags().StringVar(&desc.Backend, "backend-tag", "", "Execution backend tag (not part of the fingerprint)")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <fingerprint>",
		Short: "Print the cached entry for a fingerprint",
		Long:  "Check prints the cached entry as JSON. On a miss it prints nothing and exits with status 1.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := compcache.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			c, err := a.cache(cmd)
			if err != nil {
				return err
			}
			entry, err := c.Check(a.root, fp)
			if err != nil {
				return &runtimeError{err}
			}
			if entry == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "No entry for %s.\n", fp)
				a.exitCode = ExitMiss
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		status uint8
		items  []string
	)

	cmd := &cobra.Command{
		Use:   "update <fingerprint>",
		Short: "Store an entry for a fingerprint",
		Long:  "Update stores the entry and prints the entry it replaced as JSON, or null.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := compcache.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			entry := compcache.Entry{Status: status}
			for _, raw := range items {
				item, err := parseItem(raw)
				if err != nil {
					return err
				}
				entry.Items = append(entry.Items, item)
			}

			c, err := a.cache(cmd)
			if err != nil {
				return err
			}
			prev, err := c.Update(a.root, fp, entry)
			if err != nil {
				return &runtimeError{err}
			}
			return writeJSON(cmd.OutOrStdout(), prev)
		},
	}
	cmd.Flags().Uint8Var(&status, "status", 0, "Overall status code")
	cmd.Flags().StringArrayVar(&items, "item", nil, "Item as STATUS:MESSAGE (repeatable)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.cache(cmd)
			if err != nil {
				return err
			}
			stats, err := c.Stats(a.root)
			if err != nil {
				return &runtimeError{err}
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.cache(cmd)
			if err != nil {
				return err
			}
			if err := c.Clear(a.root); err != nil {
				return &runtimeError{err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

// parseItem parses STATUS:MESSAGE. The message may contain colons.
func parseItem(s string) (compcache.Item, error) {
	rawStatus, message, ok := strings.Cut(s, ":")
	if !ok {
		return compcache.Item{}, fmt.Errorf("invalid item %q: want STATUS:MESSAGE", s)
	}
	status, err := strconv.ParseUint(strings.TrimSpace(rawStatus), 10, 8)
	if err != nil {
		return compcache.Item{}, fmt.Errorf("invalid item status %q: %w", rawStatus, err)
	}
	return compcache.Item{Status: uint8(status), Message: message}, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
