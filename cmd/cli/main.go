package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/bookkeeper/internal/app"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func(args []string){
		"categorize":    runCategorize,
		"journal":       runJournal,
		"correct":       runCorrect,
		"flagged":       runFlagged,
		"sessions":      runSessions,
		"review-export": runReviewExport,
		"review-import": runReviewImport,
		"upload":        runUpload,
	}

	switch cmd := os.Args[1]; cmd {
	case "help", "-h", "--help":
		printUsage()
	default:
		run, ok := commands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
			printUsage()
			os.Exit(1)
		}
		run(os.Args[2:])
	}
}

func printUsage() {
	fmt.Println("Bookkeeper CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  categorize     Categorize a bank export against a chart of accounts")
	fmt.Println("  journal        Build the double-entry journal for a session")
	fmt.Println("  correct        Record a manual correction for one transaction")
	fmt.Println("  flagged        List low-confidence results of a session")
	fmt.Println("  sessions       List categorization sessions")
	fmt.Println("  review-export  Send flagged results to the Notion review database")
	fmt.Println("  review-import  Apply corrections entered in the Notion review database")
	fmt.Println("  upload         Upload a file to the artifacts bucket")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
	fmt.Println("Every command accepts -config PATH (or BOOKKEEPER_CONFIG).")
}

// newFlagSet returns a flag set with the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the YAML config file")
	return fs, configPath
}

// open loads the runtime and returns a context that carries its logger and
// is cancelled on SIGINT or SIGTERM.
func open(configPath string) (*app.Runtime, context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rt, err := app.Open(ctx, app.ConfigPath(configPath))
	if err != nil {
		cancel()
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to initialize")
	}
	return rt, rt.Context(ctx), cancel
}

func closeRuntime(rt *app.Runtime, log zerolog.Logger) {
	if err := rt.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close runtime")
	}
}
