package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"hubspoke-planner/internal/model"
	"hubspoke-planner/internal/utils"
)

type branchReport struct {
	Index       int    `json:"index"`
	Router      string `json:"router"`
	Host        string `json:"host"`
	WAN         string `json:"wan"`
	HubSide     string `json:"hubSide"`
	BranchSide  string `json:"branchSide"`
	LAN         string `json:"lan"`
	HostAddress string `json:"hostAddress"`
	RouterLAN   string `json:"routerAddress"`
	LANFree     uint64 `json:"lanFreeAddresses"` // left for additional hosts
}

type routeReport struct {
	Owner       string `json:"owner"`
	Destination string `json:"destination"`
	NextHop     string `json:"nextHop"`
}

type planReport struct {
	Hub      string         `json:"hub"`
	WANBase  string         `json:"wanBase"`
	LANBase  string         `json:"lanBase"`
	Nodes    int            `json:"nodes"`
	Links    int            `json:"links"`
	Branches []branchReport `json:"branches"`
	Routes   []routeReport  `json:"routes"`
}

func newPlanReport(plan *model.Plan, topo *model.Topology, routes *model.RouteSet) planReport {
	r := planReport{
		Hub:     plan.Hub,
		WANBase: plan.WANBase.String(),
		LANBase: plan.LANBase.String(),
		Nodes:   len(topo.Nodes),
		Links:   len(topo.Links),
	}
	for _, b := range plan.Branches {
		r.Branches = append(r.Branches, branchReport{
			Index:       b.Index,
			Router:      model.BranchRouterID(b.Index),
			Host:        model.HostID(b.Index),
			WAN:         b.WAN.Network.String(),
			HubSide:     b.WAN.HubSide.String(),
			BranchSide:  b.WAN.BranchSide.String(),
			LAN:         b.LAN.Network.String(),
			HostAddress: b.LAN.HostAddress.String(),
			RouterLAN:   b.LAN.RouterAddress.String(),
			LANFree:     utils.UsableHosts(b.LAN.Network) - 2,
		})
	}
	for _, e := range routes.Entries {
		r.Routes = append(r.Routes, routeReport{
			Owner:       e.Owner,
			Destination: e.Destination.String(),
			NextHop:     e.NextHop.String(),
		})
	}
	return r
}

var reportFormats = map[string]bool{"text": true, "json": true, "csv": true}

func checkFormat(format string) error {
	if !reportFormats[format] {
		return fmt.Errorf("unknown report format: %s", format)
	}
	return nil
}

func writeReport(w io.Writer, format string, r planReport) error {
	switch format {
	case "text":
		return writeText(w, r)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "csv":
		return writeCSV(w, r)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

func writeText(w io.Writer, r planReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "hub %s, %d branches, %d nodes, %d links, %d routes\n\n",
		r.Hub, len(r.Branches), r.Nodes, r.Links, len(r.Routes))
	fmt.Fprintln(tw, "BRANCH\tROUTER\tWAN\tHUB SIDE\tBRANCH SIDE\tLAN\tHOST\tGATEWAY\tFREE")
	for _, b := range r.Branches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			b.Index, b.Router, b.WAN, b.HubSide, b.BranchSide, b.LAN, b.HostAddress, b.RouterLAN, b.LANFree)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "OWNER\tDESTINATION\tNEXT HOP")
	for _, e := range r.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Owner, e.Destination, e.NextHop)
	}
	return tw.Flush()
}

// writeCSV emits the route table only, one row per entry.
func writeCSV(w io.Writer, r planReport) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"seq", "owner", "destination", "next_hop"})
	for i, e := range r.Routes {
		cw.Write([]string{strconv.Itoa(i), e.Owner, e.Destination, e.NextHop})
	}
	cw.Flush()
	return cw.Error()
}
