package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/rgwbridge/pkg/bridge"
	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/utils"
)

func (a *app) lsCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory, or the buckets at /",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) > 0 {
				dir = args[0]
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
			for entry, err := range a.adapter.List(dir) {
				if err != nil {
					w.Flush()
					return err
				}
				name := entry.Name
				if entry.IsDir() {
					name += "/"
				}
				if !long {
					fmt.Fprintln(w, name)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
					fileMode(entry.Attributes),
					entry.Attributes.UID,
					entry.Attributes.GID,
					entry.Attributes.Size,
					entry.Attributes.ModifyTime().UTC().Format(time.RFC3339),
					name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode, owner, size and modification time")
	return cmd
}

func (a *app) statCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the attributes of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.adapter.Canonical(args[0])
			if err != nil {
				return err
			}
			attrs, err := a.adapter.Stat(path)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
			fmt.Fprintf(w, "Path:\t%s\n", path)
			fmt.Fprintf(w, "Type:\t%s\n", kind(attrs))
			fmt.Fprintf(w, "Size:\t%d (%s)\n", attrs.Size, utils.FormatBytes(attrs.Size))
			fmt.Fprintf(w, "Mode:\t%s (%#o)\n", fileMode(attrs), attrs.Perm())
			fmt.Fprintf(w, "Owner:\t%d:%d\n", attrs.UID, attrs.GID)
			fmt.Fprintf(w, "Access:\t%s\n", attrs.AccessTime().UTC().Format(time.RFC3339))
			fmt.Fprintf(w, "Modify:\t%s\n", attrs.ModifyTime().UTC().Format(time.RFC3339))
			return w.Flush()
		},
	}
}

func (a *app) catCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>...",
		Short: "Write file contents to standard output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				if _, err := a.adapter.ReadFile(p, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) putCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local|-> <path>",
		Short: "Upload a local file, or standard input with -",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			n, err := a.adapter.WriteFile(args[1], src)
			if err != nil {
				return err
			}
			a.adapter.Logger().Debug("uploaded", "path", args[1], "bytes", n)
			return nil
		},
	}
}

func (a *app) mkdirCommand() *cobra.Command {
	var (
		parents bool
		mode    string
	)
	cmd := &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories; at / this creates buckets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := strconv.ParseUint(mode, 8, 32)
			if err != nil || perm > 0o777 {
				return errors.NewError(errors.ErrCodeInvalidArgument, "mode must be octal permission bits").
					WithParam("mode", mode)
			}
			for _, p := range args {
				if err := a.adapter.Mkdir(p, uint32(perm), parents); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, no error if existing")
	cmd.Flags().StringVarP(&mode, "mode", "m", "755", "permission bits in octal")
	return cmd
}

func (a *app) mvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Rename a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.adapter.Rename(args[0], args[1])
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files and empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				if err := a.adapter.Remove(p, recursive); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their contents")
	return cmd
}

func fileMode(attrs bridge.Attributes) os.FileMode {
	m := os.FileMode(attrs.Perm())
	if attrs.IsDir() {
		m |= os.ModeDir
	}
	return m
}

func kind(attrs bridge.Attributes) string {
	if attrs.IsDir() {
		return "directory"
	}
	return "file"
}
