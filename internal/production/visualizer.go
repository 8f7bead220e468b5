package production

import (
	"bytes"
	"fmt"

	"github.com/comalice/anchorflow"
)

// DefaultVisualizer renders a phase machine as Graphviz DOT.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for the machine, highlighting the
// active state. Internal transitions are drawn as self loops.
func (v *DefaultVisualizer) ExportDOT(m *anchorflow.Machine) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Session {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	current := m.Current()
	states := m.States()

	for _, s := range states {
		style := ""
		if current != nil && current.ID == s.ID {
			style = ` style="rounded,filled" fillcolor=lightgreen`
		}
		if s.Initial {
			style += ` peripheries=2`
		}
		buf.WriteString(fmt.Sprintf("  %q [label=%q%s];\n", s.String(), s.String(), style))
	}

	for _, s := range states {
		for _, t := range s.Transitions {
			if t == nil {
				continue
			}
			label := t.Label
			if label == "" {
				label = m.EventName(t.Event)
			}
			target := s
			attrs := ""
			if t.Target != nil {
				target = t.Target
			} else {
				attrs = " style=dashed"
			}
			buf.WriteString(fmt.Sprintf("  %q -> %q [label=%q%s];\n", s.String(), target.String(), label, attrs))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}
