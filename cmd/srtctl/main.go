// Command srtctl operates an SRT gateway from the shell. It shares the
// console's session store, so a login here is seen by the console and the
// other way round.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/visual-alchemy/blackgate-project/config"
	"github.com/visual-alchemy/blackgate-project/engine"
	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/session"
	"github.com/visual-alchemy/blackgate-project/store"
	"github.com/visual-alchemy/blackgate-project/views"
)

var Version = "dev"

const usage = `usage: srtctl [--config file] [--api-url url] [-v] <command> [args]

commands:
  login [-u user] [-p password]     log in and store the session
  logout                            clear the stored session
  whoami                            show the logged-in user
  routes [list|show|start|stop|restart|delete|create|update] ...
  destinations [list|show|delete|create|update] <route> ...
  nodes                             list cluster nodes
  pipelines [list|kill <pid>] [--detailed]
  backup [export|link|download|restore <file>] [--json] [-o file]
  stats <route> [--once]            watch route statistics
  events                            follow console events from the message bus
  audit [--limit n]                 show the local audit log
  version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// cli is one srtctl invocation.
type cli struct {
	cfg    *config.Config
	db     *store.DB
	eng    *engine.Engine
	msg    *messaging.Client
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	notes  views.Notifier

	// reported is set once an error notification has been printed, so the
	// same failure is not printed twice.
	reported   bool
	loggingOut bool
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("srtctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.SetInterspersed(false)
	configPath := fs.StringP("config", "c", "srtconsole.yaml", "path to config file")
	apiURL := fs.String("api-url", "", "gateway base URL (overrides config and "+config.EnvAPIURL+")")
	verbose := fs.BoolP("verbose", "v", false, "log engine activity to stderr")
	fs.Usage = func() { fmt.Fprint(errOut, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintln(out, "srtctl", Version)
		return 0
	}

	c, err := setup(*configPath, *apiURL, *verbose, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "srtctl: %v\n", err)
		return 1
	}
	defer c.close()

	err = c.dispatch(ctx, cmd, rest)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(errOut, usage)
		return 2
	case views.IsAuthError(err), c.reported:
		// The navigator or a notification already told the user.
		return 1
	default:
		fmt.Fprintf(errOut, "srtctl: %v\n", err)
		return 1
	}
}

func setup(configPath, apiURL string, verbose bool, out, errOut io.Writer) (*cli, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sess, err := session.Open(&cfg.Session, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	msgClient := messaging.NewClient(&cfg.Messaging)
	if msgClient.Enabled() {
		if err := msgClient.Connect(); err != nil {
			fmt.Fprintf(errOut, "srtctl: messaging unavailable (%v)\n", err)
		}
	}

	c := &cli{cfg: cfg, db: db, msg: msgClient, in: os.Stdin, out: out, errOut: errOut}
	c.notes = views.NotifierFunc(c.printNotification)
	c.eng = engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Session:   sess,
		MsgClient: msgClient,
		Navigator: gateway.NavigatorFunc(func() {
			if !c.loggingOut {
				fmt.Fprintln(errOut, "srtctl: session expired, run `srtctl login`")
			}
		}),
		LogFunc: func(format string, args ...any) {
			if verbose {
				fmt.Fprintf(errOut, format+"\n", args...)
			}
		},
	})
	c.eng.Start()
	return c, nil
}

func (c *cli) close() {
	c.eng.Stop()
	c.msg.Close()
	c.db.Close()
}

func (c *cli) printNotification(n views.Notification) {
	w := c.out
	if n.Level == views.LevelError {
		w = c.errOut
		c.reported = true
	}
	fmt.Fprintf(w, "%s: %s\n", n.Level, n.Message)
}

var errUsage = errors.New("usage")

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.loggingOut = true
		c.eng.Logout()
		fmt.Fprintln(c.out, "logged out")
		return nil
	case "whoami":
		return c.whoami()
	case "routes":
		return c.routes(ctx, args)
	case "destinations":
		return c.destinations(ctx, args)
	case "nodes":
		return c.nodes(ctx)
	case "pipelines":
		return c.pipelines(ctx, args)
	case "backup":
		return c.backup(ctx, args)
	case "stats":
		return c.stats(ctx, args)
	case "events":
		return c.events(ctx)
	case "audit":
		return c.audit(args)
	}
	return errUsage
}
