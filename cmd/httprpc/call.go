package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"httprpc/internal/client"
	"httprpc/internal/config"
	"httprpc/internal/discovery"
	"httprpc/internal/scope"
	"httprpc/internal/trace"
)

type callOptions struct {
	*rootOptions
	port    int
	timeout time.Duration
}

// callOutput is what the call command prints
type callOutput struct {
	Data    json.RawMessage `json:"data"`
	Read    []string        `json:"read"`
	Changed []string        `json:"changed"`
}

func newCallCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &callOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <endpoint> <method> [args...]",
		Short: "Issue one call and print its result",
		Long: `Issue one call and print its result with the tables it read and changed.

Each argument is parsed as JSON; arguments that are not valid JSON are sent as strings.

Example:
  httprpc call users.internal getUser 42 --port 8080`,
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runCall(cmd.Context(), opts, args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode output: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 80, "endpoint port")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "how long to wait for the result")

	return cmd
}

func runCall(ctx context.Context, opts *callOptions, endpoint, method string, rawArgs []string) (*callOutput, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	args := make([]any, len(rawArgs))
	for i, raw := range rawArgs {
		if json.Valid([]byte(raw)) {
			args[i] = json.RawMessage(raw)
		} else {
			args[i] = raw
		}
	}

	d := discovery.NewStatic(cfg.Endpoints, true, logger)
	c := client.NewFromConfig(cfg.Client, d, nil, logger)
	defer func() { _ = c.Close(context.Background()) }()

	read := scope.NewRecorder()
	changed := scope.NewRecorder()
	sc := scope.New(trace.NewTrace("call "+method), scope.Conf{}, scope.Hooks{
		OnRead:    read.Record,
		OnChanged: changed.Record,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	v, err := c.Call(sc, client.Request{
		Endpoint: client.Endpoint{Name: endpoint, Port: opts.port},
		Method:   method,
		Args:     args,
		Decode: func(data json.RawMessage) (any, error) {
			return data, nil
		},
	}).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("call %s failed: %w", method, err)
	}

	out := &callOutput{Read: read.Names(), Changed: changed.Names()}
	if data, ok := v.(json.RawMessage); ok {
		out.Data = data
	}
	return out, nil
}
