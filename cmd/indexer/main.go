package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"indexer-engine/internal/db"
	"indexer-engine/internal/manifest"
	"indexer-engine/internal/node"
	"indexer-engine/internal/pullloop"
	"indexer-engine/internal/sandbox"
	"indexer-engine/internal/service"
	"indexer-engine/pkg/config"
)

// nodeRequestTimeout bounds a single full_blocks HTTP round trip. It is
// independent of IndexerHandlerTimeoutSecs, which bounds sandboxed handler
// execution, not network I/O.
const nodeRequestTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{Use: "indexer"}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateManifestCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var manifestPaths []string
	var env string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one or more indexers until end-block, kill signal, or fatal error",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexers(cmd.Context(), manifestPaths, env)
		},
	}
	cmd.Flags().StringSliceVar(&manifestPaths, "manifest", nil, "path to a manifest YAML file (repeatable)")
	cmd.Flags().StringVar(&env, "env", "", "config environment overlay name")
	return cmd
}

func validateManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-manifest [path]",
		Short: "parse and validate a manifest file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok (start_block=%d)\n", m.UID(), m.StartBlock)
			return nil
		},
	}
}

func runIndexers(ctx context.Context, manifestPaths []string, env string) error {
	if len(manifestPaths) == 0 {
		return fmt.Errorf("at least one --manifest is required")
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	mgr := service.NewManager()
	registry := sandbox.NewHandlerRegistry()

	for _, path := range manifestPaths {
		m, err := manifest.Load(path)
		if err != nil {
			return fmt.Errorf("load manifest %s: %w", path, err)
		}

		bridge, err := buildBridge(m, registry, cfg.HandlerTimeout())
		if err != nil {
			return fmt.Errorf("build bridge for %s: %w", m.UID(), err)
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection for %s: %w", m.UID(), err)
		}
		session := db.NewSession(conn, nil)

		nodeAddr := cfg.FuelNode
		if cfg.IndexerNetConfig && m.FuelClient != "" {
			nodeAddr = m.FuelClient
		}
		nodeClient := node.NewClient(nodeAddr, nodeRequestTimeout)

		loop := pullloop.New(m.UID(), nodeClient, bridge, session, pullloop.Config{
			PageSize:             cfg.NodeGraphQLPageSize,
			MaxEmptyBlockReqs:    cfg.MaxEmptyBlockReqs,
			StopIdleIndexers:     cfg.StopIdleIndexers,
			IndexerFailedCalls:   cfg.IndexerFailedCalls,
			DelayForServiceError: cfg.DelayForServiceError(),
			DelayForEmptyPage:    cfg.DelayForEmptyPage(),
			StartBlock:           m.StartBlock,
			EndBlock:             m.EndBlock,
			Forward:              true,
		}, mgr.KillSwitch())

		mgr.Register(service.Indexer{UID: m.UID(), Loop: loop})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("indexer: shutdown signal received, stopping indexers")
		mgr.Stop()
	}()

	mgr.Start(ctx)
	results := mgr.Wait()

	exitErr := false
	for _, res := range results {
		logrus.WithField("uid", res.UID).WithField("result", res.Kind.String()).Info("indexer: task finished")
		if res.Kind == pullloop.ResultStopRetriesExhausted {
			exitErr = true
		}
	}
	if exitErr {
		return fmt.Errorf("one or more indexers exhausted their retry budget")
	}
	return nil
}

func buildBridge(m manifest.Manifest, registry map[string]sandbox.HandlerFunc, timeout time.Duration) (sandbox.Bridge, error) {
	if m.Module.Native != "" {
		return sandbox.NewNativeBridge(registry, m.Module.Native)
	}
	code, err := os.ReadFile(m.Module.Wasm)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}
	return sandbox.NewWasmBridge(code, timeout)
}
