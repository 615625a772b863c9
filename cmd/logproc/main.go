// Command logproc reads log lines from standard input, classifies them
// against a fixed grammar, folds them into a sliding-window statistical
// aggregate, and refreshes a full-screen terminal report once per second.
package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/vrurg/qnode-logproc/internal/alert"
	"github.com/vrurg/qnode-logproc/internal/config"
	"github.com/vrurg/qnode-logproc/internal/parser"
	"github.com/vrurg/qnode-logproc/internal/reader"
	"github.com/vrurg/qnode-logproc/internal/record"
	"github.com/vrurg/qnode-logproc/internal/report"
	"github.com/vrurg/qnode-logproc/internal/stats"
)

func main() {
	configPath := pflag.String(`config`, ``, `path to a TOML configuration file`)
	logLevel := pflag.String(`log-level`, ``, `override the configured log level`)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalln(err)
	}
	if *logLevel != `` {
		cfg.LogLevel = *logLevel
	}

	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf(`MAIN, invalid log level %q: %v`, cfg.LogLevel, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)

	statOpts := []stats.Option{stats.WithInitialWindow(cfg.InitialWindowMs)}
	dispatcher := alert.New(cfg.Alert)
	if dispatcher != nil {
		statOpts = append(statOpts, stats.WithAlerter(dispatcher))
	}
	core := stats.NewCore(statOpts...)

	lines := make(chan record.LineMessage)
	p := parser.New(lines, coreInputAdapter(core))
	rd := reader.New(os.Stdin, lines)
	rep := report.New(core, os.Stdout)
	rep.Interval = cfg.ReportInterval()

	// The reader blocks on a raw stdin read with no cancellation point, so
	// it and the parser run detached: on shutdown we wait only for the two
	// tasks that are guaranteed to unblock (core and reporter, both gated
	// on core.Shutdown()) rather than hang the exit on a stuck read.
	go func() {
		p.Run()
		logrus.Debug(`MAIN, parser done`)
	}()

	go func() {
		for {
			if err := rd.Run(); err != nil {
				logrus.Errorf(`MAIN, reader failed, retrying: %v`, err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			break
		}
		close(lines)
		logrus.Debug(`MAIN, reader done`)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		core.Run()
		logrus.Debug(`MAIN, stats core done`)
	}()
	go func() {
		defer wg.Done()
		rep.Run()
		logrus.Debug(`MAIN, reporter done`)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logrus.Info(`MAIN, Ctrl-C received, shutting down`)
	core.Shutdown()
	showCursor(os.Stdout)

	wg.Wait()
	dispatcher.Wait()
	os.Exit(0)
}

// coreInputAdapter exposes Core.Push as a send-only StatRecord channel so
// the parser can stay ignorant of the core's request/reply shutdown
// plumbing; it just sends until told to stop.
func coreInputAdapter(core *stats.Core) chan<- record.StatRecord {
	ch := make(chan record.StatRecord)
	go func() {
		for rec := range ch {
			if err := core.Push(rec); err != nil {
				logrus.WithError(err).Debug(`MAIN, dropping record after core shutdown`)
			}
		}
	}()
	return ch
}

func showCursor(w interface{ Write([]byte) (int, error) }) {
	_, _ = w.Write([]byte("\033[?25h"))
}
