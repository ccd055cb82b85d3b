package views

import (
	"context"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/poller"
	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// NodesView is the cluster node list.
type NodesView struct {
	deps *Deps
	n    Notifier

	mu    sync.RWMutex
	nodes []srtgw.Node
	at    time.Time

	poll *poller.Poller[[]srtgw.Node]
}

func NewNodesView(d *Deps, n Notifier) *NodesView {
	return &NodesView{deps: d, n: orNop(n)}
}

func (v *NodesView) Load(ctx context.Context) error {
	nodes, err := v.deps.Client.ListNodes(ctx)
	v.apply(nodes, err)
	return err
}

func (v *NodesView) apply(nodes []srtgw.Node, err error) {
	if err != nil {
		notifyFailure(v.n, "Failed to fetch nodes", err)
		return
	}
	v.mu.Lock()
	v.nodes = nodes
	v.at = time.Now()
	v.mu.Unlock()
}

func (v *NodesView) Nodes() []srtgw.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]srtgw.Node(nil), v.nodes...)
}

func (v *NodesView) StartPolling(ctx context.Context, onUpdate func([]srtgw.Node, error)) {
	v.poll = poller.New(poller.Config[[]srtgw.Node]{
		Name:     "nodes",
		Interval: v.deps.interval(v.deps.Poll.Nodes, defaultNodesInterval),
		Policy:   v.deps.Policy,
		Fetch:    v.deps.Client.ListNodes,
		Apply: func(nodes []srtgw.Node, err error) {
			v.apply(nodes, err)
			if onUpdate != nil {
				onUpdate(v.Nodes(), err)
			}
		},
		LogFunc: poller.LogFunc(v.deps.logf),
	})
	v.poll.Start(ctx)
}

func (v *NodesView) StopPolling() {
	if v.poll != nil {
		v.poll.Stop()
	}
}

// PipelinesView is the running pipeline process list. Detailed adds the
// extended process fields.
type PipelinesView struct {
	deps     *Deps
	n        Notifier
	detailed bool

	mu        sync.RWMutex
	pipelines []srtgw.Pipeline

	poll *poller.Poller[[]srtgw.Pipeline]
}

func NewPipelinesView(d *Deps, n Notifier, detailed bool) *PipelinesView {
	return &PipelinesView{deps: d, n: orNop(n), detailed: detailed}
}

func (v *PipelinesView) fetch(ctx context.Context) ([]srtgw.Pipeline, error) {
	if v.detailed {
		return v.deps.Client.DetailedPipelines(ctx)
	}
	return v.deps.Client.ListPipelines(ctx)
}

func (v *PipelinesView) apply(p []srtgw.Pipeline, err error) {
	if err != nil {
		notifyFailure(v.n, "Failed to fetch pipelines", err)
		return
	}
	v.mu.Lock()
	v.pipelines = p
	v.mu.Unlock()
}

func (v *PipelinesView) Load(ctx context.Context) error {
	p, err := v.fetch(ctx)
	v.apply(p, err)
	return err
}

func (v *PipelinesView) Pipelines() []srtgw.Pipeline {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]srtgw.Pipeline(nil), v.pipelines...)
}

// Kill terminates one pipeline process and refreshes the list.
func (v *PipelinesView) Kill(ctx context.Context, pid int) error {
	command := ""
	v.mu.RLock()
	for _, p := range v.pipelines {
		if p.PID == pid {
			command = p.Command
		}
	}
	v.mu.RUnlock()

	if _, err := v.deps.Client.KillPipeline(ctx, pid); err != nil {
		notifyFailure(v.n, "Failed to kill process", err)
		return err
	}
	v.deps.logf("views: pipeline %d killed by %s", pid, v.deps.actor())
	v.deps.emitter().EmitPipelineKilled(pid, command, v.deps.actor())
	v.n.Notify(Notification{Level: LevelSuccess, Message: "Pipeline process killed successfully"})
	if v.poll != nil {
		v.poll.Tick()
		return nil
	}
	return v.Load(ctx)
}

func (v *PipelinesView) StartPolling(ctx context.Context, onUpdate func([]srtgw.Pipeline, error)) {
	v.poll = poller.New(poller.Config[[]srtgw.Pipeline]{
		Name:     "pipelines",
		Interval: v.deps.interval(v.deps.Poll.Pipelines, defaultNodesInterval),
		Policy:   v.deps.Policy,
		Fetch:    v.fetch,
		Apply: func(p []srtgw.Pipeline, err error) {
			v.apply(p, err)
			if onUpdate != nil {
				onUpdate(v.Pipelines(), err)
			}
		},
		LogFunc: poller.LogFunc(v.deps.logf),
	})
	v.poll.Start(ctx)
}

func (v *PipelinesView) StopPolling() {
	if v.poll != nil {
		v.poll.Stop()
	}
}
