package clusterexec

import (
	"context"
	"encoding/xml"
	"fmt"
)

// Querier implements nodetable.ClusterQuerier by shelling out to
// crm_mon (live cluster) and cibadmin (on-disk CIB, for a stopped
// cluster), the two collaborators spec §3 "Node table" names for
// tiers 2 and 3 of the discovery precedence.
type Querier struct{}

type crmMonXML struct {
	Nodes struct {
		Node []struct {
			Name string `xml:"name,attr"`
		} `xml:"node"`
	} `xml:"nodes"`
}

type cibNodesXML struct {
	Node []struct {
		Uname string `xml:"uname,attr"`
	} `xml:"node"`
}

// LiveMembers implements nodetable.ClusterQuerier by running
// `crm_mon -1 -X` and reading the <nodes> section of its XML report.
func (Querier) LiveMembers(ctx context.Context) ([]string, error) {
	out, err := runTimed(ctx, 0, "crm_mon", "-1", "-X")
	if err != nil {
		return nil, fmt.Errorf("crm_mon: %w", err)
	}
	var doc crmMonXML
	if err := xml.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("parse crm_mon XML: %w", err)
	}
	names := make([]string, 0, len(doc.Nodes.Node))
	for _, n := range doc.Nodes.Node {
		if n.Name != "" {
			names = append(names, n.Name)
		}
	}
	return names, nil
}

// StoppedMembers implements nodetable.ClusterQuerier by running
// `cibadmin -Q -o nodes` against the on-disk CIB when the cluster
// daemons aren't running and crm_mon has nothing to report.
func (Querier) StoppedMembers(ctx context.Context) ([]string, error) {
	out, err := runTimed(ctx, 0, "cibadmin", "-Q", "-o", "nodes")
	if err != nil {
		return nil, fmt.Errorf("cibadmin: %w", err)
	}
	var doc cibNodesXML
	if err := xml.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("parse cibadmin nodes XML: %w", err)
	}
	names := make([]string, 0, len(doc.Node))
	for _, n := range doc.Node {
		if n.Uname != "" {
			names = append(names, n.Uname)
		}
	}
	return names, nil
}
