// Command assistant-sync is a small CLI over the sync library: bulk
// per-user pulls, run listings, and run origination against the remote
// assistant API, with results cached in the configured local store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carebridgehq/assistant-sync-go/config"
	"github.com/carebridgehq/assistant-sync-go/observe"
	observeotel "github.com/carebridgehq/assistant-sync-go/observe/otel"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/store"
	storefactory "github.com/carebridgehq/assistant-sync-go/store/factory"
	"github.com/carebridgehq/assistant-sync-go/stream"
	syncpkg "github.com/carebridgehq/assistant-sync-go/sync"
	"github.com/carebridgehq/assistant-sync-go/types"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch strings.TrimSpace(os.Args[1]) {
	case "sync":
		runSync(ctx, os.Args[2:])
	case "runs":
		runRuns(ctx, os.Args[2:])
	case "new-thread":
		runNewThread(ctx, os.Args[2:])
	case "send":
		runSend(ctx, os.Args[2:])
	case "inactivate":
		runInactivate(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`assistant-sync <command> [flags]

Commands:
  sync        -user <id>                       pull all threads and runs for a user
  runs        <thread-id>                      list the runs of one thread
  new-thread  -user <id>                       create a thread
  send        <thread-id> <message> [flags]    originate a run on a thread
  inactivate  <thread-id>                      retire a thread locally

send flags:
  -assistant <id>     assistant to run (or SYNC_ASSISTANT_ID)
  -stream             stream the response instead of a blocking create
  -wait               poll until the run reaches a terminal status

Environment: SYNC_API_BASE_URL (required), SYNC_API_KEY, SYNC_HTTP_TIMEOUT,
SYNC_STATE_BACKEND (sqlite|redis|hybrid), SYNC_SQLITE_PATH, SYNC_REDIS_ADDR,
SYNC_ASSISTANT_ID, SYNC_OTEL_ENABLED. A .env file is loaded when present.
`)
}

func buildDeps(ctx context.Context) (*remote.Client, store.Store, observe.Sink) {
	remoteCfg, err := config.RemoteFromEnv()
	if err != nil {
		log.Fatalf("remote config: %v", err)
	}
	client, err := remote.New(remoteCfg.BaseURL,
		remote.WithAPIKey(remoteCfg.APIKey),
		remote.WithTimeout(remoteCfg.Timeout),
	)
	if err != nil {
		log.Fatalf("remote client: %v", err)
	}

	st, err := storefactory.FromEnv(ctx)
	if err != nil {
		log.Printf("local store unavailable, continuing without cache: %v", err)
		st = nil
	}

	sinks := []observe.Sink{observe.LogSink{}}
	if config.GetenvBool("SYNC_OTEL_ENABLED", false) {
		sinks = append(sinks, observeotel.NewSink(nil))
	}
	return client, st, observe.NewMultiSink(sinks...)
}

func closeStore(st store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		log.Printf("failed to close store: %v", err)
	}
}

func runSync(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	userID := fs.String("user", "", "user id to sync")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	_ = fs.Parse(args)
	if *userID == "" {
		log.Fatal("-user is required")
	}

	client, st, sink := buildDeps(ctx)
	defer closeStore(st)

	repo, err := syncpkg.NewRepository(client,
		syncpkg.WithRepositoryStore(st),
		syncpkg.WithRepositoryObserver(sink),
	)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}

	data, err := repo.UserThreadData(ctx, *userID)
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}

	if *asJSON {
		printJSON(data)
		return
	}
	fmt.Printf("%d threads, %d runs for %s\n", len(data.Threads), len(data.Runs), data.UserID)
	for _, thread := range data.Threads {
		fmt.Printf("  %s  %-8s  %s\n", thread.ID, thread.Status, thread.Title)
	}
}

func runRuns(ctx context.Context, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: runs <thread-id>")
	}
	threadID := args[0]

	client, st, sink := buildDeps(ctx)
	defer closeStore(st)

	repo, err := syncpkg.NewRepository(client,
		syncpkg.WithRepositoryStore(st),
		syncpkg.WithRepositoryObserver(sink),
	)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}

	runs, err := repo.ThreadRuns(ctx, threadID)
	if err != nil {
		log.Fatalf("failed to list runs: %v", err)
	}
	for _, run := range runs {
		created := ""
		if run.CreatedAt != nil {
			created = run.CreatedAt.Format(time.RFC3339)
		}
		fmt.Printf("  %s  %-12s  %s  %s\n", run.ID, run.Status, created, run.LastError)
	}
}

func runNewThread(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("new-thread", flag.ExitOnError)
	userID := fs.String("user", "", "owner of the new thread")
	_ = fs.Parse(args)
	if *userID == "" {
		log.Fatal("-user is required")
	}

	client, st, sink := buildDeps(ctx)
	defer closeStore(st)

	repo, err := syncpkg.NewRepository(client,
		syncpkg.WithRepositoryStore(st),
		syncpkg.WithRepositoryObserver(sink),
	)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}

	thread, err := repo.CreateThread(ctx, *userID)
	if err != nil {
		log.Fatalf("failed to create thread: %v", err)
	}
	fmt.Println(thread.ID)
}

func runSend(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	assistantID := fs.String("assistant", config.Getenv("SYNC_ASSISTANT_ID", ""), "assistant id")
	streamed := fs.Bool("stream", false, "stream the response")
	wait := fs.Bool("wait", false, "poll until the run settles")
	_ = fs.Parse(args)

	positional := fs.Args()
	if len(positional) < 2 {
		log.Fatal("usage: send <thread-id> <message> [flags]")
	}
	if *assistantID == "" {
		log.Fatal("-assistant or SYNC_ASSISTANT_ID is required")
	}
	threadID := positional[0]
	message := strings.Join(positional[1:], " ")

	client, st, sink := buildDeps(ctx)
	defer closeStore(st)

	session, err := stream.NewSession(client, stream.WithObserver(sink))
	if err != nil {
		log.Fatalf("stream session: %v", err)
	}
	syncer, err := syncpkg.NewSynchronizer(client,
		syncpkg.WithStream(session),
		syncpkg.WithStore(st),
		syncpkg.WithObserver(sink),
	)
	if err != nil {
		log.Fatalf("synchronizer: %v", err)
	}

	settings := types.RunSettings{Stream: *streamed}
	messages := []types.Message{{Role: types.RoleUser, Content: message}}
	if *streamed {
		// The stream path carries the prompt as additional instructions;
		// the message list belongs to the blocking create body.
		settings.AdditionalInstructions = message
		messages = nil
	}

	run, err := syncer.CreateRun(ctx, threadID, *assistantID, settings, messages)
	if err != nil {
		log.Fatalf("failed to originate run: %v", err)
	}
	fmt.Printf("run %s %s\n", run.ID, run.Status)

	if *streamed {
		for chunk := range session.Chunks() {
			if chunk.Done {
				break
			}
			fmt.Print(chunk.Text)
		}
		fmt.Println()
		return
	}

	if *wait && !run.Status.Terminal() {
		poller, err := syncpkg.NewPoller(client, syncpkg.PollPolicy{})
		if err != nil {
			log.Fatalf("poller: %v", err)
		}
		settled, err := poller.WaitForTerminal(ctx, threadID, run.ID)
		if err != nil {
			log.Fatalf("run did not settle: %v", err)
		}
		fmt.Printf("run %s %s\n", settled.ID, settled.Status)
	}
}

func runInactivate(ctx context.Context, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: inactivate <thread-id>")
	}

	client, st, sink := buildDeps(ctx)
	defer closeStore(st)
	if st == nil {
		log.Fatal("a local store is required to inactivate threads")
	}

	repo, err := syncpkg.NewRepository(client,
		syncpkg.WithRepositoryStore(st),
		syncpkg.WithRepositoryObserver(sink),
	)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}

	thread, err := repo.MarkInactive(ctx, args[0])
	if err != nil {
		log.Fatalf("failed to inactivate thread: %v", err)
	}
	fmt.Printf("%s %s\n", thread.ID, thread.Status)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("failed to encode output: %v", err)
	}
}
