package pipeline

import (
	"fmt"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/dag"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
)

// Node is one vertex of a layout.
type Node struct {
	ID   nodeid.Address
	Deps []nodeid.Address
}

// Layout is the ordered set of nodes that builds one composition for one
// target.
type Layout struct {
	Target  Target
	Compose *config.Compose
	Stages  []*StagePlan
	// Toolchains are the appliance toolchains in acquisition order.
	Toolchains []*config.Toolchain
	Nodes      []Node
}

// NewLayout lays out the graph of a composition.
//
// Container: every base and stage is its own node, each stage depends on its
// development base, and the compose node joins the runtime base with every
// stage it copies from.
//
// Appliance: one development base, then the toolchains in a chain so they are
// acquired in a fixed order, then the stages, then compose, service,
// environment, purge and release in strict order.
func NewLayout(def *Definition, composeName string, target Target) (*Layout, error) {
	c, err := def.Compose(composeName)
	if err != nil {
		return nil, err
	}
	l := &Layout{Target: target, Compose: c, Stages: def.StagesFor(c)}

	switch target {
	case TargetContainer:
		l.layoutContainer()
	case TargetAppliance:
		if err := l.layoutAppliance(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
	return l, nil
}

func (l *Layout) add(kind nodeid.Kind, name string, deps ...nodeid.Address) nodeid.Address {
	id := nodeid.New(kind, name)
	l.Nodes = append(l.Nodes, Node{ID: id, Deps: deps})
	return id
}

func (l *Layout) layoutContainer() {
	bases := make(map[nodeid.Address]bool)
	addBase := func(ref nodeid.Address) {
		if !bases[ref] {
			bases[ref] = true
			l.add(nodeid.KindBase, ref.Name)
		}
	}
	for _, sp := range l.Stages {
		addBase(sp.Stage.Base)
	}
	addBase(l.Compose.Base)

	joins := []nodeid.Address{l.Compose.Base}
	for _, sp := range l.Stages {
		joins = append(joins, l.add(nodeid.KindStage, sp.Stage.Name, sp.Stage.Base))
	}
	composeID := l.add(nodeid.KindCompose, l.Compose.Name, joins...)
	l.add(nodeid.KindRelease, l.Compose.Name, composeID)
}

func (l *Layout) layoutAppliance() error {
	a := l.Compose.Appliance
	if a == nil {
		return fmt.Errorf("compose %q declares no appliance block", l.Compose.Name)
	}
	for _, sp := range l.Stages {
		if sp.Stage.Base != a.Base {
			return fmt.Errorf("stage '%s' builds on %s but the appliance filesystem is %s", sp.Stage.Name, sp.Stage.Base, a.Base)
		}
	}

	base := l.add(nodeid.KindBase, a.Base.Name)
	l.Toolchains = ToolchainsFor(l.Stages)
	prev := base
	for _, tc := range l.Toolchains {
		prev = l.add(nodeid.KindToolchain, tc.Name, prev)
	}

	joins := []nodeid.Address{base}
	for _, sp := range l.Stages {
		deps := []nodeid.Address{base}
		for _, tc := range sp.Toolchains {
			deps = append(deps, nodeid.New(nodeid.KindToolchain, tc.Name))
		}
		joins = append(joins, l.add(nodeid.KindStage, sp.Stage.Name, deps...))
	}

	name := l.Compose.Name
	prev = l.add(nodeid.KindCompose, name, joins...)
	for _, kind := range []nodeid.Kind{nodeid.KindService, nodeid.KindEnvironment, nodeid.KindPurge, nodeid.KindRelease} {
		prev = l.add(kind, name, prev)
	}
	return nil
}

// Node returns the node with the given ID.
func (l *Layout) Node(id nodeid.Address) (Node, bool) {
	for _, n := range l.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Graph builds the execution graph, binding a task to every node.
func (l *Layout) Graph(bind func(Node) dag.Task) (*dag.Graph, error) {
	g := dag.New()
	for _, n := range l.Nodes {
		g.AddNode(n.ID.String(), bind(n))
	}
	for _, n := range l.Nodes {
		for _, dep := range n.Deps {
			if err := g.AddEdge(dep.String(), n.ID.String()); err != nil {
				return nil, fmt.Errorf("failed to link %s: %w", n.ID, err)
			}
		}
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}
