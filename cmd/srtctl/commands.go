package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/visual-alchemy/blackgate-project/gateway"
	"github.com/visual-alchemy/blackgate-project/messaging"
	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/views"
)

// EnvPassword supplies the login password when -p is not given.
const EnvPassword = "SRTGW_PASSWORD"

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	user := fs.StringP("user", "u", "admin", "user name")
	password := fs.StringP("password", "p", "", "password (default $"+EnvPassword+" or prompt)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *password == "" {
		*password = os.Getenv(EnvPassword)
	}
	if *password == "" {
		fmt.Fprint(c.errOut, "password: ")
		line, err := bufio.NewReader(c.in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	res, err := c.eng.Login(ctx, *user, *password)
	if err != nil {
		return err
	}
	name := res.User.Name()
	if name == "" {
		name = *user
	}
	fmt.Fprintf(c.out, "logged in as %s (%s)\n", name, c.cfg.API.BaseURL)
	return nil
}

func (c *cli) whoami() error {
	s := c.eng.Session()
	if !s.IsAuthenticated() {
		fmt.Fprintln(c.out, "not logged in")
		return nil
	}
	u, err := s.User()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", u.Name(), c.cfg.API.BaseURL)
	return nil
}

// readInput decodes a JSON document from path, or stdin when path is "-".
func (c *cli) readInput(path string, v any) error {
	if path == "" {
		return fmt.Errorf("--file is required")
	}
	var r io.Reader = c.in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printFieldErrors(err error) {
	var verr *srtgw.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			fmt.Fprintf(c.errOut, "  %s: %s\n", f.Field, f.Message)
		}
	}
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func (c *cli) routes(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	fs := newFlags("routes " + sub)
	file := fs.StringP("file", "f", "", "route JSON (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	deps := c.eng.Deps()

	switch sub {
	case "list":
		v := views.NewRoutesView(deps, c.notes)
		if err := v.Load(ctx); err != nil {
			return err
		}
		tw := c.table()
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSCHEMA\tDESTINATIONS\tUPDATED")
		for _, r := range v.Routes() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Status, r.Schema, len(r.Destinations), since(r.UpdatedAt.Time))
		}
		return tw.Flush()

	case "show":
		if fs.NArg() != 1 {
			return errUsage
		}
		v := views.NewRouteView(deps, c.notes, srtgw.ID(fs.Arg(0)))
		if err := v.Load(ctx); err != nil {
			return err
		}
		return c.printJSON(v.Snapshot().Route)

	case srtgw.ActionStart, srtgw.ActionStop, srtgw.ActionRestart, "toggle":
		if fs.NArg() != 1 {
			return errUsage
		}
		v := views.NewRouteView(deps, c.notes, srtgw.ID(fs.Arg(0)))
		if err := v.Load(ctx); err != nil {
			return err
		}
		var err error
		if sub == "toggle" {
			err = v.Toggle(ctx)
		} else {
			err = v.SetStatus(ctx, sub)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s\n", v.ID(), v.Status())
		return nil

	case "delete":
		if fs.NArg() != 1 {
			return errUsage
		}
		v := views.NewRouteView(deps, c.notes, srtgw.ID(fs.Arg(0)))
		if err := v.Load(ctx); err != nil {
			return err
		}
		return v.Delete(ctx)

	case "create", "update":
		id := views.NewID
		if sub == "update" {
			if fs.NArg() != 1 {
				return errUsage
			}
			id = srtgw.ID(fs.Arg(0))
		}
		f := views.NewSourceForm(deps, c.notes, id)
		if err := f.Load(ctx); err != nil {
			return err
		}
		if err := c.readInput(*file, &f.Input); err != nil {
			return err
		}
		if _, err := f.Save(ctx); err != nil {
			c.printFieldErrors(err)
			return err
		}
		fmt.Fprintln(c.out, f.ID())
		return nil
	}
	return errUsage
}

func (c *cli) destinations(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "list", "show", "delete", "create", "update":
			sub, args = args[0], args[1:]
		}
	}
	fs := newFlags("destinations " + sub)
	file := fs.StringP("file", "f", "", "destination JSON (- for stdin)")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}
	deps := c.eng.Deps()
	routeID := srtgw.ID(fs.Arg(0))
	destArg := func() (srtgw.ID, error) {
		if fs.NArg() != 2 {
			return "", errUsage
		}
		return srtgw.ID(fs.Arg(1)), nil
	}

	switch sub {
	case "list":
		dests, err := deps.Client.ListDestinations(ctx, routeID)
		if err != nil {
			return err
		}
		tw := c.table()
		fmt.Fprintln(tw, "ID\tNAME\tENABLED\tSCHEMA\tHOST\tPORT")
		for _, d := range dests {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", d.ID, d.Name, d.Enabled, d.Schema,
				d.SchemaOptions.String("host"), d.SchemaOptions.String("port"))
		}
		return tw.Flush()

	case "show":
		id, err := destArg()
		if err != nil {
			return err
		}
		f := views.NewDestinationForm(deps, c.notes, routeID, id)
		if err := f.Load(ctx); err != nil {
			return err
		}
		return c.printJSON(f.Input)

	case "delete":
		id, err := destArg()
		if err != nil {
			return err
		}
		v := views.NewRouteView(deps, c.notes, routeID)
		if err := v.Load(ctx); err != nil {
			return err
		}
		return v.DeleteDestination(ctx, id)

	case "create", "update":
		id := views.NewID
		if sub == "update" {
			var err error
			if id, err = destArg(); err != nil {
				return err
			}
		}
		f := views.NewDestinationForm(deps, c.notes, routeID, id)
		if err := f.Load(ctx); err != nil {
			return err
		}
		if err := c.readInput(*file, &f.Input); err != nil {
			return err
		}
		dest, err := f.Save(ctx)
		if err != nil {
			c.printFieldErrors(err)
			return err
		}
		if dest != nil && dest.ID != "" {
			fmt.Fprintln(c.out, dest.ID)
		}
		return nil
	}
	return errUsage
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + "%"
}

func (c *cli) nodes(ctx context.Context) error {
	v := views.NewNodesView(c.eng.Deps(), c.notes)
	if err := v.Load(ctx); err != nil {
		return err
	}
	tw := c.table()
	fmt.Fprintln(tw, "HOST\tSTATUS\tCPU\tRAM\tSWAP\tLOAD")
	for _, n := range v.Nodes() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", n.Host, n.Status, percent(n.CPU), percent(n.RAM), percent(n.Swap), n.LA)
	}
	return tw.Flush()
}

func (c *cli) pipelines(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	fs := newFlags("pipelines " + sub)
	detailed := fs.BoolP("detailed", "d", false, "include virtual and resident memory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	v := views.NewPipelinesView(c.eng.Deps(), c.notes, *detailed)

	switch sub {
	case "list":
		if err := v.Load(ctx); err != nil {
			return err
		}
		tw := c.table()
		if *detailed {
			fmt.Fprintln(tw, "PID\tCPU\tMEMORY\tVIRT\tRES\tUSER\tSTARTED\tCOMMAND")
		} else {
			fmt.Fprintln(tw, "PID\tCPU\tMEMORY\tUSER\tSTARTED\tCOMMAND")
		}
		for _, p := range v.Pipelines() {
			mem := p.Memory
			if p.MemoryBytes > 0 {
				mem = srtgw.FormatBytes(p.MemoryBytes)
			}
			if *detailed {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", p.PID, p.CPU, mem, p.VirtualMemory, p.ResidentMemory, p.User, p.StartTime, p.Command)
			} else {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.PID, p.CPU, mem, p.User, p.StartTime, p.Command)
			}
		}
		return tw.Flush()

	case "kill":
		if fs.NArg() != 1 {
			return errUsage
		}
		pid, err := strconv.Atoi(fs.Arg(0))
		if err != nil || pid <= 0 {
			return fmt.Errorf("invalid pid %q", fs.Arg(0))
		}
		// Loading first names the command in the audit trail.
		v.Load(ctx)
		return v.Kill(ctx, pid)
	}
	return errUsage
}

// printOpener prints download links instead of opening a browser.
type printOpener struct {
	out io.Writer
}

func (o printOpener) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintln(o.out, url)
	return err
}

// fileOpener fetches a download link to a local file.
type fileOpener struct {
	gw   *gateway.Gateway
	path string
	n    int64
}

func (o *fileOpener) Open(ctx context.Context, url string) error {
	resp, err := o.gw.AuthFetch(ctx, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if o.n, err = io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) backup(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub := args[0]
	fs := newFlags("backup " + sub)
	asJSON := fs.Bool("json", false, "use the JSON route export instead of the .backup file")
	output := fs.StringP("output", "o", "", "file to write (default srtgw-<date>.backup or .json)")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	// Success messages would mix with printed links and data.
	quiet := views.NewSettingsView(c.eng.Deps(), views.NotifierFunc(func(n views.Notification) {
		if n.Level == views.LevelError {
			c.printNotification(n)
		}
	}))
	open := quiet.DownloadBackup
	if *asJSON {
		open = quiet.Download
	}

	switch sub {
	case "export":
		raw, err := c.eng.Client().ExportBackup(ctx)
		if err != nil {
			return err
		}
		_, err = c.out.Write(append(raw, '\n'))
		return err
	case "link":
		return open(ctx, printOpener{c.out})
	case "download":
		path := *output
		if path == "" {
			ext := views.BackupExt
			if *asJSON {
				ext = ".json"
			}
			path = "srtgw-" + time.Now().Format("20060102-150405") + ext
		}
		o := &fileOpener{gw: c.eng.Gateway(), path: path}
		if err := open(ctx, o); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "wrote %s (%s)\n", path, humanize.IBytes(uint64(o.n)))
		return nil
	case "restore":
		if fs.NArg() != 1 {
			return errUsage
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = views.NewSettingsView(c.eng.Deps(), c.notes).Restore(ctx, f.Name(), f)
		return err
	}
	return errUsage
}

func (c *cli) printSnapshot(s views.RouteSnapshot) {
	ts := s.StatsAt.Format("15:04:05")
	if s.StatsError != "" {
		fmt.Fprintf(c.errOut, "%s stats: %s\n", ts, s.StatsError)
		return
	}
	if s.Source == nil {
		return
	}
	src := s.Source
	fmt.Fprintf(c.out, "%s source  %s  rtt %.1f ms  loss %.2f%% (%s)  callers %d  total %s\n",
		ts, srtgw.FormatMbps(src.BitrateMbps), src.RTTMs, src.PacketLossPercent,
		srtgw.LossLevel(src.PacketLossPercent), src.ConnectedCallers, srtgw.FormatBytes(src.TotalBytes))
	for _, d := range s.Destinations {
		fmt.Fprintf(c.out, "%s   %-12s %s  rtt %.1f ms  callers %d  sent %s\n",
			ts, d.Destination.Name, srtgw.FormatMbps(d.SendRateMbps), d.RTTMs, d.ConnectedCallers, srtgw.FormatBytes(d.BytesSent))
	}
}

func (c *cli) stats(ctx context.Context, args []string) error {
	fs := newFlags("stats")
	once := fs.Bool("once", false, "print one sample and exit")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	id := srtgw.ID(fs.Arg(0))
	v := views.NewRouteView(c.eng.Deps(), c.notes, id)
	if err := v.Load(ctx); err != nil {
		return err
	}
	if !strings.EqualFold(v.Status(), srtgw.StatusStarted) {
		return fmt.Errorf("route %s is %s, statistics are only collected while it runs", id, v.Status())
	}

	if *once {
		stats, err := c.eng.Client().RouteStats(ctx, id)
		if err != nil {
			return err
		}
		sum := stats.Summary()
		c.printSnapshot(views.RouteSnapshot{Route: v.Snapshot().Route, Source: &sum, StatsAt: time.Now()})
		return nil
	}

	v.StartPolling(ctx, c.printSnapshot)
	defer v.StopPolling()
	<-ctx.Done()
	return nil
}

// eventPrinter prints console events received from the message bus.
type eventPrinter struct {
	messaging.NoOpHandler
	out io.Writer
}

func (p *eventPrinter) line(env *messaging.Envelope, format string, args ...any) {
	fmt.Fprintf(p.out, "%s %-24s %-10s "+format+"\n",
		append([]any{env.Timestamp.Local().Format(time.DateTime), env.Type, env.Src.Station}, args...)...)
}

func (p *eventPrinter) HandleRouteStatusChanged(env *messaging.Envelope, e *messaging.RouteStatusChanged) {
	p.line(env, "%s (%s) %s -> %s by %s", e.Name, e.RouteID, e.OldStatus, e.NewStatus, e.Actor)
}

func (p *eventPrinter) HandleRouteChanged(env *messaging.Envelope, e *messaging.RouteChanged) {
	p.line(env, "%s (%s) %s by %s", e.Name, e.RouteID, e.Action, e.Actor)
}

func (p *eventPrinter) HandleDestinationChanged(env *messaging.Envelope, e *messaging.DestinationChanged) {
	p.line(env, "%s (%s/%s) %s by %s", e.Name, e.RouteID, e.DestinationID, e.Action, e.Actor)
}

func (p *eventPrinter) HandlePipelineKilled(env *messaging.Envelope, e *messaging.PipelineKilled) {
	p.line(env, "pid %d %s by %s", e.PID, e.Command, e.Actor)
}

func (p *eventPrinter) HandleBackupRestored(env *messaging.Envelope, e *messaging.BackupRestored) {
	p.line(env, "%s by %s", e.Filename, e.Actor)
}

func (p *eventPrinter) HandleSessionExpired(env *messaging.Envelope, e *messaging.SessionExpired) {
	p.line(env, "%s (%s)", e.User, e.Reason)
}

func (c *cli) events(ctx context.Context) error {
	if !c.msg.Enabled() {
		return fmt.Errorf("no messaging backend configured")
	}
	ing := messaging.NewIngestor(&eventPrinter{out: c.out}, messaging.StationFilter(""))
	topic := c.cfg.Messaging.EventsTopic
	if err := c.msg.Subscribe(topic, ing.HandleRaw); err != nil {
		return err
	}
	fmt.Fprintf(c.errOut, "following %s on %s\n", topic, c.msg.Backend())
	<-ctx.Done()
	return nil
}

func (c *cli) audit(args []string) error {
	fs := newFlags("audit")
	limit := fs.IntP("limit", "n", 50, "number of entries")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	entries, err := c.db.ListAuditLog(*limit)
	if err != nil {
		return err
	}
	tw := c.table()
	fmt.Fprintln(tw, "WHEN\tACTOR\tENTITY\tACTION\tCHANGE")
	for _, e := range entries {
		change := e.NewValue
		if e.OldValue != "" {
			change = e.OldValue + " -> " + e.NewValue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n", since(e.CreatedAt), e.Actor, e.EntityType, e.EntityID, e.Action, change)
	}
	return tw.Flush()
}
