package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crawlserv/crawlservpp-sub001/internal/analyzer"
	"github.com/crawlserv/crawlservpp-sub001/internal/config"
	"github.com/crawlserv/crawlservpp-sub001/internal/control"
	"github.com/crawlserv/crawlservpp-sub001/internal/crawler"
	"github.com/crawlserv/crawlservpp-sub001/internal/extractor"
	"github.com/crawlserv/crawlservpp-sub001/internal/parser"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/supervisor"
	"github.com/crawlserv/crawlservpp-sub001/internal/worker"
)

const cookiesDir = "cookies"

// rootCmd is crawlserv's only command: read the configuration file named by
// its one positional argument, then run the server until killed (spec §6).
var rootCmd = &cobra.Command{
	Use:   "crawlserv <config-file>",
	Short: "crawlserv runs the crawling/parsing/extraction/analysis server",
	Long: `crawlserv is a multi-tenant web data-acquisition server: it loads a
key=value configuration file, connects to its MySQL-compatible store,
resurrects every surviving worker thread, and serves a JSON control
endpoint until an authenticated kill command or SIGINT/SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return run(args[0])
	},
}

// Execute runs rootCmd, matching main.main()'s single call-site contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfgFile, err := config.Load(configPath)
	if err != nil {
		return err
	}
	serverCfg := cfgFile.Server()

	password, err := promptPassword()
	if err != nil {
		return fmt.Errorf("reading database password: %w", err)
	}

	if err := os.MkdirAll(cookiesDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cookiesDir, err)
	}

	st, err := store.Open(store.Settings{
		Host:         serverCfg.DBHost,
		Port:         serverCfg.DBPort,
		User:         serverCfg.DBUser,
		Password:     password,
		Name:         serverCfg.DBName,
		SleepOnError: 5 * time.Second,
		LockWait:     10 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	logger := log.New(os.Stderr, "crawlserv: ", log.LstdFlags)

	sup, err := supervisor.New(st, logger, time.Second, 5*time.Second)
	if err != nil {
		return err
	}
	registerFactories(sup)
	sup.SetServerAllow(serverCfg.ServerAllow)

	if err := sup.Resurrect(); err != nil {
		return err
	}
	sup.Run()
	defer sup.Shutdown()

	controlHandle, err := st.NewHandle("control")
	if err != nil {
		return err
	}
	defer controlHandle.Close()

	controlServer := control.New(sup, controlHandle, serverCfg)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", serverCfg.ServerPort),
		Handler: controlServer,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()
	logger.Printf("listening on :%d", serverCfg.ServerPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	case <-controlServer.Killed():
		logger.Print("received kill command, shutting down")
	case err := <-serveErrCh:
		return fmt.Errorf("control server: %w", err)
	}

	return httpServer.Close()
}

// registerFactories binds each module to the Supervisor (spec §4.4 "every
// module is implemented as a Worker with identical lifecycle").
func registerFactories(sup *supervisor.Supervisor) {
	sup.RegisterFactory(store.ModuleCrawler, func(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (worker.Runner, error) {
		return crawler.New(handle, options, w)
	})
	sup.RegisterFactory(store.ModuleParser, func(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (worker.Runner, error) {
		return parser.New(handle, options, w)
	})
	sup.RegisterFactory(store.ModuleExtractor, func(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (worker.Runner, error) {
		return extractor.New(handle, options, w)
	})
	sup.RegisterFactory(store.ModuleAnalyzer, func(handle *store.Handle, options store.ThreadOptions, w *worker.Worker) (worker.Runner, error) {
		return analyzer.New(handle, options, w)
	})
}

// promptPassword reads the database password from stdin without echo
// (spec §6 "read interactively from stdin without echo").
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "database password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
