package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"remotefs/client"
	"remotefs/protocol"
)

type clientFlags struct {
	url     string
	token   string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "ws://localhost:8080/fs", "server endpoint")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("REMOTEFS_TOKEN"), "bearer token")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")
}

// dial connects a one-shot client. The caller must Disconnect it.
func (f *clientFlags) dial(ctx context.Context) (*client.Client, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	c := client.New(client.Options{
		URL:              f.url,
		Header:           header,
		DisableReconnect: true,
		HandshakeTimeout: f.timeout,
	})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newLsCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "ls PATH",
		Short: "List a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			c, err := flags.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			entries, err := c.ListDirectory(ctx, args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", entryKind(e), units.HumanSize(float64(e.Size)), e.Name)
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func entryKind(e protocol.DirectoryEntry) string {
	switch {
	case e.IsDirectory:
		return "dir"
	case e.IsFile:
		return "file"
	}
	return "other"
}

func newCatCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			c, err := flags.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			res, err := c.ReadFile(ctx, args[0], "base64")
			if err != nil {
				return err
			}
			data, err := protocol.DecodeContent(res.Content, res.Encoding)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
