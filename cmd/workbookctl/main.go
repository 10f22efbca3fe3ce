package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/workbook/internal/backend"
	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/daemon"
	"github.com/matheus3301/workbook/internal/profile"
	"github.com/matheus3301/workbook/internal/progress"
	"github.com/matheus3301/workbook/internal/store"
	"github.com/matheus3301/workbook/internal/wire"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}
	client := backend.NewClient(cfg.API.BaseURL, backend.StaticToken(cfg.API.Token))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, name, *jsonFlag)
	case "grant":
		if len(args) != 3 {
			usageError("usage: workbookctl grant <name> <user|admin>")
		}
		cmdGrant(name, args[1], args[2], *jsonFlag)
	case "upload":
		if len(args) != 3 {
			usageError("usage: workbookctl upload <page> <file>")
		}
		cmdUpload(ctx, client, args[1], args[2], *jsonFlag)
	case "progress":
		cmdProgress(ctx, client, cfg, *jsonFlag)
	case "send":
		if len(args) < 2 {
			usageError("usage: workbookctl send <text>")
		}
		cmdSend(ctx, client, strings.Join(args[1:], " "), *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: workbookctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Probe the local daemon")
	fmt.Fprintln(os.Stderr, "  grant <name> <role>       Create a user in the local daemon DB and print its token")
	fmt.Fprintln(os.Stderr, "  upload <page> <file>      Upload a checkpoint photo")
	fmt.Fprintln(os.Stderr, "  progress                  Show completed checkpoints")
	fmt.Fprintln(os.Stderr, "  send <text>               Send a message to support")
}

func cmdStatus(ctx context.Context, name string, jsonOut bool) {
	h, err := daemon.Probe(ctx, profile.SocketPath(name))
	if err != nil {
		fatal(fmt.Errorf("daemon for profile %q not reachable: %w", name, err))
	}
	if jsonOut {
		outputJSON(h)
		return
	}
	fmt.Printf("Profile: %s\n", name)
	fmt.Printf("Daemon:  %s\n", servingLabel(h.Serving))
	fmt.Printf("Relay:   %s\n", servingLabel(h.Relay))
}

func servingLabel(ok bool) string {
	if ok {
		return "serving"
	}
	return "not serving"
}

// cmdGrant writes straight to the profile database; workbookd may be running,
// WAL mode and the busy timeout make that safe.
func cmdGrant(name, userName, role string, jsonOut bool) {
	if role != store.RoleUser && role != store.RoleAdmin {
		usageError("role must be user or admin")
	}
	if err := profile.EnsureDir(name); err != nil {
		fatal(err)
	}
	db, err := store.Open(profile.DBPath(name))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(nil); err != nil {
		fatal(err)
	}

	u, err := db.CreateUser(userName, role)
	if err != nil {
		fatal(err)
	}
	token, err := db.IssueToken(u.ID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"id": u.ID, "name": u.Name, "role": u.Role, "token": token})
		return
	}
	fmt.Printf("User:  %s (%s, %s)\n", u.Name, u.ID, u.Role)
	fmt.Printf("Token: %s\n", token)
}

func cmdUpload(ctx context.Context, c *backend.Client, pageArg, path string, jsonOut bool) {
	page, err := strconv.Atoi(pageArg)
	if err != nil || page <= 0 {
		usageError(fmt.Sprintf("invalid page %q", pageArg))
	}
	f, err := os.Open(path)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = f.Close() }()

	st, err := c.UploadPhoto(ctx, "", page, filepath.Base(path), f)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Page %d uploaded: %s\n", page, st.ImageURL)
}

func cmdProgress(ctx context.Context, c *backend.Client, cfg *config.Config, jsonOut bool) {
	me, err := c.Me(ctx)
	if err != nil {
		fatal(err)
	}
	if me.Role != wire.SenderUser {
		fatal(fmt.Errorf("progress is tracked for learners, %s is %s", me.Name, me.Role))
	}

	s := progress.NewStore(c, progress.Options{Checkpoints: cfg.Progress.Checkpoints, Gating: cfg.Progress.Gating})
	completed := s.Initialize(ctx, me.ID)
	if jsonOut {
		outputJSON(map[string]any{"checkpoints": s.Checkpoints(), "completed": completed})
		return
	}
	for _, p := range s.Checkpoints() {
		mark := " "
		if s.Has(p) {
			mark = "x"
		}
		fmt.Printf("[%s] page %d\n", mark, p)
	}
	fmt.Printf("%d/%d complete\n", len(completed), len(s.Checkpoints()))
}

func cmdSend(ctx context.Context, c *backend.Client, text string, jsonOut bool) {
	conv, err := c.LearnerConversation(ctx)
	if err != nil {
		fatal(err)
	}
	msg, err := c.PostMessage(ctx, conv.ID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s at %s\n", msg.ID, msg.CreatedAt.Local().Format(time.Kitchen))
}

func usageError(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
