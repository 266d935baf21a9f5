package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/invgraph/graphcore/pkg/graph"
)

// writeYAML marshals views (or extra, if set) as YAML using
// gopkg.in/yaml.v3, the corpus's YAML encoder of choice (stdlib has
// none) — grounded on the evalgo-org-eve example's use of the same
// package for config and response bodies.
func writeYAML(w io.Writer, views []graph.NodeView, extra map[string]any) {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if extra != nil {
		_ = enc.Encode(extra)
		return
	}
	rows := make([]map[string]any, 0, len(views))
	for _, v := range views {
		rows = append(rows, nodeViewToMap(v))
	}
	_ = enc.Encode(rows)
}

func nodeViewToMap(v graph.NodeView) map[string]any {
	var payload any
	_ = json.Unmarshal(v.Payload, &payload)
	return map[string]any{
		"id":      v.ID,
		"kind":    v.Kind,
		"payload": payload,
	}
}

// accountName extracts ancestors.account.reported.name from a node's
// payload, returning "" if the path is absent — nodes with no account
// ancestor are grouped into a single ungrouped subgraph.
func accountName(v graph.NodeView) string {
	var payload map[string]any
	if err := json.Unmarshal(v.Payload, &payload); err != nil {
		return ""
	}
	cur := any(payload)
	for _, seg := range []string{"ancestors", "account", "reported", "name"} {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[seg]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// paired12 is the graphviz "paired12" colorscheme's 12 color names,
// assigned deterministically by account name in sorted order.
var paired12 = []string{
	"#a6cee3", "#1f78b4", "#b2df8a", "#33a02c",
	"#fb9a99", "#e31a1c", "#fdbf6f", "#ff7f00",
	"#cab2d6", "#6a3d9a", "#ffff99", "#b15928",
}

// writeDOT renders views as a Graphviz DOT graph, grouping nodes into
// one subgraph per distinct ancestors.account.reported.name, colored
// deterministically from the paired12 colorscheme by account order —
// the exact scheme named in the operations surface.
func writeDOT(w io.Writer, views []graph.NodeView) {
	byAccount := map[string][]graph.NodeView{}
	var accountOrder []string
	for _, v := range views {
		acct := accountName(v)
		if _, seen := byAccount[acct]; !seen {
			accountOrder = append(accountOrder, acct)
		}
		byAccount[acct] = append(byAccount[acct], v)
	}
	sort.Strings(accountOrder)

	fmt.Fprintln(w, "digraph {")
	for i, acct := range accountOrder {
		color := paired12[i%len(paired12)]
		label := acct
		if label == "" {
			label = "ungrouped"
		}
		fmt.Fprintf(w, "  subgraph \"cluster_%d\" {\n", i)
		fmt.Fprintf(w, "    label=%q;\n", label)
		fmt.Fprintf(w, "    color=%q;\n", color)
		for _, v := range byAccount[acct] {
			fmt.Fprintf(w, "    %q [label=%q];\n", v.ID, dotLabel(v))
		}
		fmt.Fprintln(w, "  }")
	}
	fmt.Fprintln(w, "}")
}

func dotLabel(v graph.NodeView) string {
	return strings.ReplaceAll(fmt.Sprintf("%s|%s", v.ID, v.Kind), `"`, `\"`)
}
