package cli

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/qakit/qakit/internal/restmock"
)

// MockOptions holds flags for the mock command.
type MockOptions struct {
	*RootOptions
	Stubs string // stub file path
	Addr  string // listen address
}

// NewMockCommand creates the mock command.
func NewMockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a standalone REST mock server",
		Long: `Run the REST mock server as a standalone process.

Stubs are loaded from a YAML file. The inspection console is served
under /_qakit: GET /_qakit/stubs lists stubs with call counts and
GET /_qakit/requests lists recorded traffic.

The server runs until interrupted.

Examples:
  qakit mock --stubs ./stubs.yaml
  qakit mock --stubs ./stubs.yaml --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMock(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Stubs, "stubs", "", "stub file to load (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	_ = cmd.MarkFlagRequired("stubs")

	return cmd
}

func runMock(opts *MockOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Stubs); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("stub file not found: %s", opts.Stubs))
	}

	// The ephemeral backing server is unused; requests come in through our
	// own listener below.
	mock := restmock.NewServer()
	defer mock.Close()

	if err := mock.LoadStubs(opts.Stubs); err != nil {
		return WrapExitError(ExitCommandError, "failed to load stubs", err)
	}

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", opts.Addr), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "mock server listening on http://%s (console at /_qakit/stubs)\n",
		listener.Addr())

	if err := http.Serve(listener, mock.Handler()); err != nil {
		return WrapExitError(ExitCommandError, "mock server stopped", err)
	}
	return nil
}
