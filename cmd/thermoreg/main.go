// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"thermoreg/internal/config"
	"thermoreg/internal/control"
	"thermoreg/internal/metrics"
	"thermoreg/internal/recorder"
	"thermoreg/internal/sampling"
	"thermoreg/internal/webapi"
	"thermoreg/pkg/appctx"
	"thermoreg/pkg/eventbus"
	"thermoreg/pkg/logger"
	"thermoreg/pkg/rootserv"
	"thermoreg/pkg/service"
	"thermoreg/pkg/sysmon"

	"github.com/spf13/cobra"
)

var (
	rootDir    string
	configPath string
	target     float64
)

func main() {
	root := &cobra.Command{
		Use:           "thermoreg",
		Short:         "Single-zone heating/cooling regulator for a DS18B20 sensor and two PWM outputs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultRoot := os.Getenv("PROJECT_ROOT")
	if defaultRoot == "" {
		defaultRoot = "."
	}
	root.PersistentFlags().StringVar(&rootDir, "root", defaultRoot, "project root holding var/config and var/logs (env PROJECT_ROOT)")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "var/config/thermoreg.json", "config file, relative to --root")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sampler, the HTTP API and the metrics endpoint until interrupted",
		RunE:  func(cmd *cobra.Command, args []string) error { return run() },
	}

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Take one sensor reading and print it",
		RunE:  func(cmd *cobra.Command, args []string) error { return readOnce(cmd.Context()) },
	}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Run one control decision against --target and leave the outputs set",
		RunE:  func(cmd *cobra.Command, args []string) error { return applyOnce(cmd.Context()) },
	}
	applyCmd.Flags().Float64VarP(&target, "target", "t", 0, "target temperature in °C")
	applyCmd.MarkFlagRequired("target")

	root.AddCommand(runCmd, readCmd, applyCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootDir, path)
	}
	conf, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	conf.RootDir = rootDir
	return conf, nil
}

func run() error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	logPath := filepath.Join(rootDir, "var/logs/thermoreg.log")
	if err := logger.Init(logPath, conf.Logging.MaxBytes); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer logger.Close()
	log := logger.New("Main")
	log.Info("root=%s log=%s outputs=%s simulate=%v", rootDir, logPath, conf.Outputs.Backend, conf.Sensor.Simulate)

	// use conf to pass eventbus to whoever needs it
	conf.EventBus = eventbus.New()
	defer conf.EventBus.Close()

	hw, err := openHardware(conf, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.shutdown(); err != nil {
			log.Error("shutdown outputs: %v", err)
		}
	}()

	rec, err := recorder.FromConfig(conf)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Error("close recorders: %v", err)
		}
	}()
	if rec.Len() == 0 {
		log.Warn("no recorder configured, samples are only published on the bus")
	}

	ctx, ctxCancel := appctx.New()
	defer ctxCancel()

	// init services
	loop := control.NewLoop(hw.reader, hw.driver).
		WithCalculator(control.NewProportional(conf.Control.Gain)).
		WithBus(conf.EventBus)
	interval := time.Duration(conf.Sampling.IntervalSeconds) * time.Second
	samplingService := sampling.New(hw.reader, rec, interval).WithBus(conf.EventBus)
	metricsService := metrics.New(conf.EventBus)
	apiService := webapi.New(loop, hw.driver, hw.reader, conf.EventBus).
		WithSetpointRange(conf.Control.MinSetpointC, conf.Control.MaxSetpointC)

	sysMonitorService := sysmon.New().
		AddProbe("sampling", func() map[string]any {
			st := samplingService.Stats()
			return map[string]any{
				"interval":        interval.String(),
				"cycles":          st.Cycles,
				"recorded":        st.Recorded,
				"read_failures":   st.ReadFailures,
				"record_failures": st.RecordFailures,
				"sinks":           rec.Names(),
			}
		}).
		AddProbe("outputs", func() map[string]any {
			st := hw.driver.State()
			return map[string]any{
				"backend":   conf.Outputs.Backend,
				"heat_duty": st.HeatDuty,
				"cool_duty": st.CoolDuty,
			}
		}).
		AddProbe("eventbus", func() map[string]any {
			st := conf.EventBus.Stats()
			return map[string]any{
				"published": st.Published,
				"delivered": st.Delivered,
				"replaced":  st.Replaced,
				"dropped":   st.Dropped,
			}
		})
	if hw.plant != nil {
		sysMonitorService.AddProbe("simulation", hw.plant.Probe)
	}

	// attach web handler enabled services
	server := rootserv.New(conf.HTTP.Addr)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/metrics", "Prometheus Metrics", metricsService.Handler())
	if hw.registerPage != nil {
		server.Attach("/outputs", "Modbus Output Registers", hw.registerPage)
	}
	server.Attach("/", "Regulator API (/api/target, /api/status, /api/actuators, /api/reading, /ws)", apiService)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		samplingService,
		metricsService,
		apiService,
		server,
	})

	// waits for all services to stop
	if code := <-exitCh; code != 0 {
		return fmt.Errorf("service failure, exit code %d", code)
	}
	return nil
}

func readOnce(ctx context.Context) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	hw, err := openHardware(conf, false)
	if err != nil {
		return err
	}
	defer hw.release()
	hw.describe(os.Stderr)

	s, err := hw.reader.Read(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"id": s.ID, "temp": s.ValueC, "timestamp": s.CapturedAt})
}

func applyOnce(ctx context.Context) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if target < conf.Control.MinSetpointC || target > conf.Control.MaxSetpointC {
		return fmt.Errorf("target %.2f°C outside [%.1f, %.1f]", target, conf.Control.MinSetpointC, conf.Control.MaxSetpointC)
	}
	hw, err := openHardware(conf, true)
	if err != nil {
		return err
	}
	defer hw.release()

	loop := control.NewLoop(hw.reader, hw.driver).WithCalculator(control.NewProportional(conf.Control.Gain))
	res, applyErr := loop.Apply(ctx, target)
	if err := printJSON(res); err != nil {
		return err
	}
	return applyErr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
