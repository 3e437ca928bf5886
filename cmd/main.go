package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fleet-ops-dashboard/internal/api"
	"fleet-ops-dashboard/internal/chart"
	"fleet-ops-dashboard/internal/config"
	"fleet-ops-dashboard/internal/db"
	"fleet-ops-dashboard/internal/engine"
	"fleet-ops-dashboard/internal/logging"
	"fleet-ops-dashboard/internal/mapview"
	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/notify"
	"fleet-ops-dashboard/internal/parser"
	"fleet-ops-dashboard/internal/rankings"
	"fleet-ops-dashboard/internal/simulate"
	"fleet-ops-dashboard/internal/source"
	"fleet-ops-dashboard/internal/store"
	"fleet-ops-dashboard/internal/upstream"
	"fleet-ops-dashboard/internal/ws"

	"github.com/spf13/cobra"
)

const mapContainer = "fleet-map"

var (
	cfgFile    string
	sourceName string
	dbPath     string
	apiURL     string
	port       int
	logLevel   string
	cfg        config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fleet-ops",
		Short: "Fleet Ops Dashboard - live fleet state, anomalies and map scenes",
		Long: `A dashboard engine that polls fleet telemetry on a fixed cadence, keeps the
current snapshot with derived statistics and anomalies, and pushes fleet state
and map scenes to connected clients. Replay data can be ingested from files or
generated along the built-in freight corridors.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default config.yml)")
	rootCmd.PersistentFlags().StringVar(&sourceName, "source", "", "Snapshot source (http, replay, kafka)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to replay SQLite database")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Telemetry backend base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(framesCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(spikeCmd())
	rootCmd.AddCommand(rankingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment and flags. Flags win.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Poll.Source = sourceName
	}
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("api-url") {
		cfg.Upstream.BaseURL = apiURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logging.Init(cfg.LogLevel)
	logging.Debugf("config: %+v", cfg)
	return nil
}

func newClient() *upstream.Client {
	return upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
}

// openSource builds the configured snapshot source. The returned close
// function is never nil.
func openSource(client *upstream.Client) (source.Source, func() error, error) {
	switch cfg.Poll.Source {
	case "replay":
		database, err := db.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("database error: %w", err)
		}
		return source.NewReplaySource(database), database.Close, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, errors.New("kafka source needs at least one broker (kafka.brokers or FLEET_KAFKA_BROKERS)")
		}
		k, err := source.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Version, cfg.Kafka.StaleAfter)
		if err != nil {
			return nil, nil, err
		}
		return k, k.Close, nil
	default:
		return source.NewHTTPSource(client), func() error { return nil }, nil
	}
}

// chartSource polls the backend on its own for the http source. Replay and
// kafka sources are consumed by the engine, so the chart samples the store.
func chartSource(client *upstream.Client, st *store.Store) source.Source {
	if cfg.Poll.Source == "http" {
		return source.NewHTTPSource(client)
	}
	return source.Func(func(ctx context.Context) (*models.FleetSnapshot, error) {
		return st.State().Snapshot, nil
	})
}

// startNotifier forwards anomalies to RabbitMQ when an AMQP URL is configured
func startNotifier(ctx context.Context, st *store.Store) func() {
	if cfg.AMQP.URL == "" {
		return func() {}
	}

	pub := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pub.Start(startCtx); err != nil {
		log.Printf("⚠️  AMQP not ready yet, anomalies are dropped until it connects: %v", err)
	}

	fwd := notify.NewForwarder(pub, 0)
	unsubscribe := st.Subscribe(fwd.Listen)
	go fwd.Run(ctx)

	return func() {
		unsubscribe()
		published, dropped := fwd.Counts()
		log.Printf("🛑 Anomaly fan-out stopped (%d published, %d dropped)", published, dropped)
		pub.Close()
	}
}

// serveCmd starts the poll loop and the dashboard API
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the fleet and serve the dashboard API and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := newClient()
			src, closeSrc, err := openSource(client)
			if err != nil {
				return err
			}
			defer closeSrc()

			st := store.New(cfg.Poll.EfficiencyInterval, cfg.Anomaly.Retention)
			eng := engine.New(src, st, cfg.Poll.Interval, cfg.Upstream.Timeout)
			buf := chart.NewBuffer(chartSource(client, st), cfg.Chart.Capacity, cfg.Chart.Interval)

			scenes := mapview.NewSceneFactory()
			layer := mapview.NewLayer(mapview.NewRegistry(), scenes.Create, st, st.Select)
			if err := layer.Mount(mapContainer); err != nil {
				return err
			}
			defer layer.Dispose()

			hub := ws.NewHub(layer)
			go hub.Run(ctx)
			detach := ws.Attach(hub, st, layer)
			defer detach()

			stopNotifier := startNotifier(ctx, st)
			defer stopNotifier()

			buf.Start(ctx)
			defer buf.Stop()
			go eng.Run(ctx)

			server := api.NewServer(api.Deps{
				Store:     st,
				Backend:   client,
				Layer:     layer,
				Scenes:    scenes,
				Container: mapContainer,
				Chart:     buf,
				Hub:       hub,
				Health:    eng,
				Timeout:   cfg.Upstream.Timeout,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			fmt.Printf("🚀 Fleet Ops Dashboard\n")
			fmt.Printf("   Listening on http://localhost%s\n", addr)
			fmt.Printf("   Source: %s (every %s)\n", cfg.Poll.Source, cfg.Poll.Interval)
			fmt.Printf("   Backend: %s\n\n", client.BaseURL())
			fmt.Println("Available endpoints:")
			fmt.Println("  GET    /health")
			fmt.Println("  GET    /api/v1/fleet")
			fmt.Println("  GET    /api/v1/stats")
			fmt.Println("  GET    /api/v1/anomalies?severity=")
			fmt.Println("  GET    /api/v1/routes")
			fmt.Println("  GET    /api/v1/map/scene")
			fmt.Println("  PUT    /api/v1/map/filter")
			fmt.Println("  POST   /api/v1/map/activate")
			fmt.Println("  PUT    /api/v1/selection")
			fmt.Println("  DELETE /api/v1/selection")
			fmt.Println("  GET    /api/v1/chart")
			fmt.Println("  GET    /api/v1/chart.png")
			fmt.Println("  GET    /api/v1/rankings")
			fmt.Println("  POST   /api/v1/query")
			fmt.Println("  POST   /api/v1/spike")
			fmt.Println("  GET    /ws")
			fmt.Println()

			errCh := make(chan error, 1)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Printf("🛑 Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")
	return cmd
}

// watchCmd prints a summary line for every ingest
func watchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the fleet and print a summary after every snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src, closeSrc, err := openSource(newClient())
			if err != nil {
				return err
			}
			defer closeSrc()

			st := store.New(cfg.Poll.EfficiencyInterval, cfg.Anomaly.Retention)
			eng := engine.New(src, st, cfg.Poll.Interval, cfg.Upstream.Timeout)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			seen := 0
			unsubscribe := st.Subscribe(func(s store.State) {
				if s.Reason != store.ReasonIngest {
					return
				}
				printSummary(s)
				seen++
				if count > 0 && seen >= count {
					cancel()
				}
			})
			defer unsubscribe()

			fmt.Printf("👀 Watching %s source every %s (Ctrl+C to stop)\n\n", cfg.Poll.Source, cfg.Poll.Interval)
			eng.Run(ctx)

			h := eng.Health()
			fmt.Printf("\n%d polls, %d failed\n", h.Polls, h.Failures)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 0, "Stop after this many snapshots (0 = run until interrupted)")
	return cmd
}

func printSummary(s store.State) {
	fmt.Printf("[%s] v%d | %d vehicles | CO₂ %.2f kg | saved %.2f kg | %.1f km/L | on time %d (%.0f%%)\n",
		s.UpdatedAt.Format("15:04:05"), s.Version, s.Stats.VehicleCount,
		s.Stats.TotalCO2, s.Stats.TotalSaved, s.Stats.AvgEfficiency,
		s.Stats.OnTimeCount, s.Stats.OnTimePct)
	for _, ev := range s.NewAnomalies {
		icon := "⚠️ "
		if ev.Severity == models.SeverityCritical {
			icon = "🔴"
		}
		fmt.Printf("     %s %s %s: %s\n", icon, ev.VehicleID, ev.Type, ev.Detail)
	}
}

// ingestCmd stores snapshot files as replay frames
func ingestCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest snapshot files into the replay database, one frame per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			p := parser.NewParser(format)
			totalRecords := 0
			totalErrors := 0

			for _, file := range args {
				fmt.Printf("Processing %s...\n", file)
				start := time.Now()

				records, err := p.ParseFile(file)
				if err != nil {
					fmt.Printf("  Error: %v\n", err)
					totalErrors++
					continue
				}

				snap, problems := parser.Normalize(records)
				parser.LogProblems(file, problems)
				totalErrors += len(problems)

				frame, err := database.NextFrame()
				if err != nil {
					return fmt.Errorf("database error: %w", err)
				}
				count, err := database.InsertFrame(frame, snap.Records())
				if err != nil {
					fmt.Printf("  Database error: %v\n", err)
					continue
				}

				elapsed := time.Since(start)
				fmt.Printf("  ✓ Frame %d: %d records in %v\n", frame, count, elapsed)
				totalRecords += int(count)
			}

			fmt.Printf("\nTotal: %d records ingested", totalRecords)
			if totalErrors > 0 {
				fmt.Printf(", %d problems", totalErrors)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "File format (csv, json, jsonl, log)")
	return cmd
}

// generateCmd records synthetic corridor traffic as replay frames
func generateCmd() *cobra.Command {
	var frames int
	var step time.Duration
	var seed uint64
	var spikeEvery int
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic fleet traffic into the replay database",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			fleet := simulate.NewFleet(simulate.DefaultTrucks(), seed, time.Now())
			ids := fleet.IDs()
			first, err := database.NextFrame()
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}

			var exported [][]models.VehicleRecord
			start := time.Now()
			inserted := 0

			for i := 0; i < frames; i++ {
				if spikeEvery > 0 && i > 0 && i%spikeEvery == 0 {
					fleet.Spike(ids[(i/spikeEvery-1)%len(ids)])
				}
				records := fleet.Step(step)
				count, err := database.InsertFrame(first+int64(i), records)
				if err != nil {
					return fmt.Errorf("frame %d: %w", first+int64(i), err)
				}
				inserted += int(count)
				if output != "" {
					exported = append(exported, records)
				}
				fmt.Printf("\rInserted %d/%d frames...", i+1, frames)
			}

			elapsed := time.Since(start)
			fmt.Printf("\n✓ Generated %d frames (%d records) in %v\n", frames, inserted, elapsed)

			// Export to file if requested
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer file.Close()

				enc := json.NewEncoder(file)
				enc.SetIndent("", "  ")
				if err := enc.Encode(exported); err != nil {
					return fmt.Errorf("error writing output file: %w", err)
				}
				fmt.Printf("Frames exported to %s\n", output)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 200, "Number of frames to generate")
	cmd.Flags().DurationVarP(&step, "step", "s", 2*time.Minute, "Simulated time between frames")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&spikeEvery, "spike-every", 25, "Inject an emission spike every N frames (0 = never)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export generated frames to JSON file")
	return cmd
}

// framesCmd shows replay database statistics
func framesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frames",
		Short: "Show replay database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats()
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}
			vehicles, err := database.ListVehicles()
			if err != nil {
				return fmt.Errorf("error listing vehicles: %w", err)
			}

			fmt.Println("📊 Replay Database")
			fmt.Println("==================")
			fmt.Printf("  Frames:         %d\n", stats.Frames)
			fmt.Printf("  Records:        %d\n", stats.Records)
			fmt.Printf("  Vehicles:       %d\n", stats.Vehicles)
			fmt.Printf("  Alert Records:  %d\n", stats.AlertRecords)
			fmt.Printf("  Database:       %s\n", cfg.Database.Path)
			if len(vehicles) > 0 {
				fmt.Printf("  Vehicle IDs:    %s\n", strings.Join(vehicles, ", "))
			} else {
				fmt.Println("\nNo frames found. Use 'fleet-ops generate' or 'fleet-ops ingest' to add some.")
			}

			return nil
		},
	}
}

// askCmd sends a question to the answering service
func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask the fleet answering service a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.Timeout)
			defer cancel()

			result, err := newClient().Query(ctx, strings.Join(args, " "))
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				return nil
			}

			fmt.Println(result.Answer)
			if len(result.Sources) > 0 {
				fmt.Printf("\nSources: %s\n", strings.Join(result.Sources, ", "))
			}
			if result.LiveDataUsed {
				fmt.Println("(answered with live fleet data)")
			}
			return nil
		},
	}
}

// spikeCmd injects a synthetic anomaly on the backend
func spikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spike [vehicle_id]",
		Short: "Ask the backend to inject an emission spike for a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.Timeout)
			defer cancel()

			if err := newClient().Spike(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Spike requested for %s\n", args[0])
			return nil
		},
	}
}

// rankingsCmd prints the fleet emission ranking
func rankingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rankings",
		Short: "Show the fleet emission ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Upstream.Timeout)
			defer cancel()

			client := newClient()
			var snapshot *models.FleetSnapshot
			if records, err := client.FetchFleet(ctx); err == nil {
				snapshot, _ = parser.Normalize(records)
			}

			res := rankings.Fetch(ctx, client, snapshot)
			if res.Degraded {
				fmt.Println("⚠️  Ranking service unavailable, showing placeholder figures")
			}
			if len(res.Entries) == 0 {
				fmt.Println("No vehicles to rank.")
				return nil
			}

			fmt.Printf("%-4s %-12s %-20s %10s %10s  %-6s %s\n", "#", "Vehicle", "Route", "CO₂ kg", "kg/km", "Score", "Status")
			fmt.Println(strings.Repeat("-", 80))
			for i, e := range res.Entries {
				fmt.Printf("%-4d %-12s %-20s %10.2f %10.3f  %s %s\n",
					i+1, e.VehicleID, e.Route, e.CO2Kg, e.CO2PerKm, rankings.Stars(e.Score), e.Status)
			}
			return nil
		},
	}
}
