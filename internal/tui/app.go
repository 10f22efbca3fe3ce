// Package tui is the terminal client: learners see their checkpoint progress
// next to the support chat, admins get the support inbox.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/workbook/internal/backend"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/channel"
	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/conversation"
	"github.com/matheus3301/workbook/internal/progress"
	"github.com/matheus3301/workbook/internal/status"
	"github.com/matheus3301/workbook/internal/tui/keys"
	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/matheus3301/workbook/internal/tui/views"
	"github.com/matheus3301/workbook/internal/wire"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Deps are the long-lived components the TUI drives. Channel must have been
// created with Bus so connection changes reach the status bar.
type Deps struct {
	Profile string
	Config  *config.Config
	Backend *backend.Client
	Channel *channel.Client
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// page adapts a plain primitive to ui.Component.
type page struct {
	tview.Primitive
	name  string
	hints []ui.MenuHint
}

func (p *page) Name() string         { return p.name }
func (p *page) Start()               {}
func (p *page) Stop()                {}
func (p *page) Hints() []ui.MenuHint { return p.hints }

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	deps     Deps
	logger   *zap.Logger
	theme    *ui.Theme
	flash    *ui.FlashModel
	registry *keys.Registry

	layout    *tview.Flex
	pages     *ui.Pages
	prompt    *ui.Prompt
	hintBar   *ui.HintBar
	statusBar *views.StatusBar
	loading   *tview.TextView

	home         *page
	progressView *views.ProgressView
	threadView   *views.ThreadView
	inboxView    *views.InboxView
	helpView     *views.HelpView

	mu       sync.Mutex
	me       *wire.Identity
	progress *progress.Store
	thread   *conversation.Thread
	inbox    *conversation.Inbox

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		deps:      d,
		logger:    logger.Named("tui"),
		theme:     theme,
		flash:     ui.NewFlashModel(),
		registry:  keys.NewRegistry(),
		pages:     ui.NewPages(),
		prompt:    ui.NewPrompt(theme),
		hintBar:   ui.NewHintBar(theme),
		statusBar: views.NewStatusBar(theme, d.Profile),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.progressView = views.NewProgressView(theme, a.uploadURL)
	a.threadView = views.NewThreadView(theme)
	a.inboxView = views.NewInboxView(theme)
	a.statusBar.SetChannel(d.Channel.State())

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) uploadURL(page int) string {
	return strings.TrimRight(a.deps.Config.API.BaseURL, "/") + "/progress-checkpoints/" + wire.PageID(page) + "/photo"
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: a.showPrompt,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: a.app.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Back",
		Handler: a.back,
	})

	compose := func() { a.app.SetFocus(a.threadView.Composer()) }
	a.registry.AddView("home", &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true, Handler: compose})
	a.registry.AddView("home", &keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Reload", Visible: true, Handler: a.reload})
	a.registry.AddView("thread", &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true, Handler: compose})
	a.registry.AddView("thread", &keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Inbox", Visible: true, Handler: a.back})
	a.registry.AddView("inbox", &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Visible: true, Handler: a.openSelected})
	a.registry.AddView("inbox", &keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true, Handler: func() {
		a.showPrompt()
		a.prompt.SetText("filter ")
	}})
	a.registry.AddView("inbox", &keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Reload", Visible: true, Handler: a.reload})
}

func (a *App) setupCallbacks() {
	a.threadView.SetOnSend(func(text string) {
		thread, inbox := a.session()
		if thread == nil {
			return
		}
		go func() {
			msg, err := thread.Send(a.ctx, text)
			if err != nil {
				a.flashErr("send failed", err)
				return
			}
			if inbox != nil {
				inbox.NoteSent(msg)
			}
		}()
	})

	a.prompt.SetOnSubmit(func(text string) {
		a.hidePrompt()
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(top ui.Component) {
		a.hintBar.Update(slices.Concat(top.Hints(), a.registry.Hints(top.Name())))
		a.app.SetFocus(top)
	})
}

func (a *App) setupLayout() {
	a.loading = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	a.loading.SetBackgroundColor(a.theme.BgColor)
	a.loading.SetText("\n\nConnecting to " + tview.Escape(a.deps.Config.API.BaseURL) + " ...")

	a.home = &page{
		Primitive: tview.NewFlex().
			AddItem(a.progressView, 0, 1, false).
			AddItem(a.threadView, 0, 2, true),
		name: "home",
	}

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.hintBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.layout, true)
	a.pages.Reset(&page{Primitive: a.loading, name: "loading"})

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		focused := a.app.GetFocus()
		if focused == a.threadView.Composer() && event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.pages.Top())
			return nil
		}
		// Text inputs get every key.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}
		if top := a.pages.Top(); top != nil && a.registry.HandleEvent(top.Name(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go a.bootstrap()
	go a.watchStatus()
	go a.refreshLoop()
	defer a.shutdown()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) session() (*conversation.Thread, *conversation.Inbox) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread, a.inbox
}

func (a *App) bootstrap() {
	me, err := a.deps.Backend.Me(a.ctx)
	if err != nil {
		a.logger.Error("identify failed", zap.Error(err))
		msg := "Cannot reach the workbook API: " + err.Error()
		if errors.Is(err, backend.ErrUnauthenticated) {
			msg = "No valid API token. Run `workbookctl grant <name> user` and set api.token in config.toml or WORKBOOK_TOKEN."
		}
		a.app.QueueUpdateDraw(func() {
			a.loading.SetText("\n\n[red]" + tview.Escape(msg) + "[-]")
		})
		return
	}
	a.mu.Lock()
	a.me = me
	a.mu.Unlock()
	a.app.QueueUpdateDraw(func() { a.statusBar.SetIdentity(me.Name, string(me.Role)) })

	if err := a.deps.Channel.Connect(a.ctx); err != nil {
		a.flash.Warn("live updates unavailable, polling instead")
	}

	if me.Role == wire.SenderAdmin {
		a.startAdmin()
	} else {
		a.startLearner(me)
	}
}

func (a *App) startLearner(me *wire.Identity) {
	cfg := a.deps.Config
	store := progress.NewStore(a.deps.Backend, progress.Options{
		Checkpoints: cfg.Progress.Checkpoints,
		Gating:      cfg.Progress.Gating,
		Logger:      a.logger,
	})
	store.OnChange(func() {
		a.app.QueueUpdateDraw(func() { a.progressView.Update(store) })
	})
	thread := conversation.NewThread(a.deps.Backend, a.deps.Channel, wire.SenderUser, conversation.Options{Logger: a.logger})
	thread.OnChange(func() {
		a.app.QueueUpdateDraw(func() { a.threadView.Update(thread.Messages(), wire.SenderUser) })
	})

	a.mu.Lock()
	a.progress, a.thread = store, thread
	a.mu.Unlock()

	store.Initialize(a.ctx, me.ID)
	if err := store.Watch(a.ctx, a.progressSource()); err != nil {
		a.flashErr("progress updates", err)
	}

	if conv, err := a.deps.Backend.LearnerConversation(a.ctx); err != nil {
		a.flashErr("load conversation", err)
	} else if err := thread.Open(a.ctx, conv.ID); err != nil {
		a.flashErr("load messages", err)
	}

	a.app.QueueUpdateDraw(func() {
		a.progressView.Update(store)
		a.threadView.Update(thread.Messages(), wire.SenderUser)
		a.pages.Reset(a.home)
	})
}

// progressSource pushes when the relay is up and polls otherwise.
func (a *App) progressSource() progress.Source {
	if a.deps.Channel.Connected() {
		return progress.NewPushSource(a.deps.Channel, a.logger)
	}
	cfg := a.deps.Config.Progress
	return progress.NewPollSource(a.deps.Backend, cfg.Checkpoints, cfg.PollInterval.Duration, a.logger)
}

func (a *App) startAdmin() {
	inbox := conversation.NewInbox(a.deps.Backend, a.deps.Channel, conversation.Options{Logger: a.logger})
	inbox.OnChange(func() {
		a.app.QueueUpdateDraw(func() { a.inboxView.Update(inbox.Conversations()) })
	})
	thread := conversation.NewThread(a.deps.Backend, a.deps.Channel, wire.SenderAdmin, conversation.Options{Logger: a.logger})
	thread.OnChange(func() {
		a.app.QueueUpdateDraw(func() { a.threadView.Update(thread.Messages(), wire.SenderAdmin) })
	})

	a.mu.Lock()
	a.inbox, a.thread = inbox, thread
	a.mu.Unlock()

	if err := inbox.Load(a.ctx); err != nil {
		a.flashErr("load inbox", err)
	}
	inbox.Watch()

	a.app.QueueUpdateDraw(func() {
		a.inboxView.Update(inbox.Conversations())
		a.pages.Reset(a.inboxView)
	})
}

func (a *App) openSelected() {
	c, ok := a.inboxView.Selected()
	thread, inbox := a.session()
	if !ok || thread == nil {
		return
	}
	name := c.UserName
	if name == "" {
		name = c.UserID
	}
	a.threadView.SetCounterpart(name)
	a.threadView.Update(nil, wire.SenderAdmin)
	a.pages.Push(a.threadView)

	go func() {
		if err := thread.Open(a.ctx, c.ID); err != nil {
			a.flashErr("load messages", err)
		}
		if err := inbox.Acknowledge(a.ctx, c.ID); err != nil {
			a.flashErr("mark read", err)
		}
	}()
}

func (a *App) back() {
	switch a.pages.Top() {
	case a.threadView:
		if thread, _ := a.session(); thread != nil {
			thread.Close()
		}
		a.pages.Pop()
	case a.helpView:
		a.pages.Pop()
	}
}

func (a *App) showHelp() {
	if a.helpView == nil {
		var keyHints []ui.MenuHint
		for _, view := range []string{"home", "inbox", "thread"} {
			keyHints = append(keyHints, a.registry.Hints(view)...)
		}
		a.helpView = views.NewHelpView(a.theme, []views.HelpSection{
			{Title: "Keys", Entries: dedupeHints(keyHints)},
			{Title: "Commands (: mode)", Entries: []ui.MenuHint{
				{Key: ":upload [page] <file>", Description: "Upload a checkpoint photo (next pending page by default)"},
				{Key: ":reload", Description: "Refetch progress, inbox and messages"},
				{Key: ":connect", Description: "Reconnect live updates"},
				{Key: ":filter <text>", Description: "Filter the inbox"},
				{Key: ":help", Description: "Show this help"},
				{Key: ":quit", Description: "Quit"},
			}},
		})
	}
	if a.pages.Top() != a.helpView {
		a.pages.Push(a.helpView)
	}
}

func dedupeHints(hints []ui.MenuHint) []ui.MenuHint {
	seen := make(map[ui.MenuHint]bool)
	out := hints[:0]
	for _, h := range hints {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

func (a *App) showPrompt() {
	a.layout.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.pages.Top())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.app.Stop()
	case "h", "help":
		a.showHelp()
	case "reload":
		a.reload()
	case "connect":
		go a.reconnect()
	case "filter":
		a.inboxView.SetFilter(cmd.Args)
	case "upload":
		page, path, err := uploadArgs(cmd.Args)
		if err != nil {
			a.flash.Warn(err.Error())
			return
		}
		go a.upload(page, path)
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

func (a *App) reload() {
	a.mu.Lock()
	store, thread, inbox, me := a.progress, a.thread, a.inbox, a.me
	a.mu.Unlock()
	if me == nil {
		go a.bootstrap()
		return
	}
	go func() {
		if store != nil {
			store.Initialize(a.ctx, me.ID)
			// Initialize starts a new epoch; re-attach the source to it.
			if err := store.Watch(a.ctx, a.progressSource()); err != nil {
				a.flashErr("progress updates", err)
			}
		}
		if inbox != nil {
			if err := inbox.Load(a.ctx); err != nil {
				a.flashErr("load inbox", err)
			}
		}
		if thread != nil && thread.ConversationID() != "" {
			if err := thread.Load(a.ctx, thread.ConversationID()); err != nil {
				a.flashErr("load messages", err)
			}
		}
		a.flash.Info("reloaded")
	}()
}

func (a *App) reconnect() {
	if err := a.deps.Channel.Connect(a.ctx); err != nil {
		a.flashErr("connect", err)
		return
	}
	a.mu.Lock()
	store := a.progress
	a.mu.Unlock()
	if store != nil && a.deps.Channel.Connected() {
		if err := store.Watch(a.ctx, a.progressSource()); err != nil {
			a.flashErr("progress updates", err)
		}
	}
}

func (a *App) upload(page int, path string) {
	a.mu.Lock()
	store := a.progress
	a.mu.Unlock()
	if store == nil {
		a.flash.Warn("uploads are for learners")
		return
	}
	if page == 0 {
		next, ok := store.NextPending()
		if !ok {
			a.flash.Info("all checkpoints already complete")
			return
		}
		page = next
	}

	f, err := os.Open(expandHome(path))
	if err != nil {
		a.flashErr("upload", err)
		return
	}
	defer func() { _ = f.Close() }()

	a.flash.Info(fmt.Sprintf("uploading page %d...", page))
	if _, err := a.deps.Backend.UploadPhoto(a.ctx, "", page, filepath.Base(path), f); err != nil {
		a.flashErr("upload", err)
		return
	}
	store.MarkCompletedLocally(page)
	a.flash.Info(fmt.Sprintf("page %d uploaded", page))
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func (a *App) flashErr(what string, err error) {
	a.logger.Warn(what, zap.Error(err))
	a.flash.Err(fmt.Errorf("%s: %w", what, err))
}

func (a *App) watchStatus() {
	if a.deps.Bus == nil {
		return
	}
	events, unsubscribe := a.deps.Bus.Subscribe(status.Topic, 16)
	defer unsubscribe()
	for {
		select {
		case evt := <-events:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			a.app.QueueUpdateDraw(func() { a.statusBar.SetChannel(change.To) })
		case <-a.ctx.Done():
			return
		}
	}
}

// refreshLoop repaints the status bar for new and expiring flash messages.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.flash.Watch():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		msg := a.flash.Current()
		a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(msg) })
	}
}

func (a *App) shutdown() {
	a.cancel()
	a.mu.Lock()
	store, thread, inbox := a.progress, a.thread, a.inbox
	a.mu.Unlock()
	if store != nil {
		store.Close()
	}
	if thread != nil {
		thread.Close()
	}
	if inbox != nil {
		inbox.Close()
	}
	a.deps.Channel.Disconnect()
}
