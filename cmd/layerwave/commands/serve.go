package commands

import (
	"github.com/spf13/cobra"

	"github.com/layerwave/layerwave/pkg/policy"
	"github.com/layerwave/layerwave/pkg/server"
)

func newServeCommand() *cobra.Command {
	var (
		catalogFile string
		addr        string
		watch       bool
		policies    []string
		enforce     bool
		archive     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning API",
		Long: `Serve the planning API over HTTP.

Endpoints:
  POST /api/v1/plan          plan a layers document against the loaded catalog
  GET  /api/v1/reports       list archived reports (with --archive)
  GET  /api/v1/reports/{id}  one archived report (with --archive)
  GET  /health, /ready       liveness and readiness
  GET  /metrics              Prometheus metrics

With --watch the catalog file is reloaded on change; a catalog that fails
to load is logged and the previous one keeps serving.`,
		Example: `  layerwave serve --catalog catalog.yaml --addr :8080 --watch`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			s := rt.settings

			if cmd.Flags().Changed("addr") {
				s.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				s.Server.Watch = watch
			}
			if cmd.Flags().Changed("enforce") {
				s.Server.EnforcePolicies = enforce
			}

			catalogPath, err := rt.catalogPath(catalogFile)
			if err != nil {
				return err
			}
			cat, err := rt.parser.LoadCatalog(ctx, catalogPath)
			if err != nil {
				return err
			}

			pe, err := policy.NewEngine(rt.telemetry.Logger.Zerolog())
			if err != nil {
				return err
			}
			paths := rt.policyPaths(policies)
			if len(paths) > 0 {
				if err := pe.LoadPolicies(ctx, paths); err != nil {
					return err
				}
			}
			opts := []server.Option{server.WithPolicies(pe)}

			if archive {
				store, err := openArchive(ctx, rt)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				opts = append(opts, server.WithArchive(store))
			}

			srv := server.New(server.Config{
				Addr:            s.Server.Addr,
				CacheTTL:        s.Server.CacheTTL,
				DefaultTarget:   s.Target,
				EnforcePolicies: s.Server.EnforcePolicies,
				ReadTimeout:     s.Server.ReadTimeout,
				WriteTimeout:    s.Server.WriteTimeout,
				ShutdownTimeout: s.Server.ShutdownTimeout,
			}, rt.parser, rt.telemetry, opts...)
			srv.SetCatalog(cat)

			if s.Server.Watch && len(paths) > 0 {
				loader := policy.NewLoader(rt.telemetry.Logger.Zerolog())
				if err := loader.Watch(ctx, paths, func(p []policy.Policy) error {
					if err := pe.ReplacePolicies(ctx, p); err != nil {
						return err
					}
					srv.FlushPlans()
					return nil
				}); err != nil {
					return err
				}
				defer func() { _ = loader.StopWatching() }()
			}

			if s.Server.Watch {
				watcher, err := srv.WatchCatalog(ctx, catalogPath, 0)
				if err != nil {
					return err
				}
				defer func() { _ = watcher.Stop() }()
			}

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog document (.yaml, .json or .cue)")
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the catalog and policies on change")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&enforce, "enforce", false, "reject plans with blocking policy findings")
	cmd.Flags().BoolVar(&archive, "archive", false, "expose archived reports from database.path")

	return cmd
}
