package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"github.com/hushd/hushd/pkg/hushcli"
)

var (
	addParams hushcli.AddProfileParams

	addFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "name, n",
			Usage:       "profile name (required)",
			Destination: &addParams.Name,
		},
		cli.StringFlag{
			Name:        "kind, k",
			Usage:       "trigger kind: time, location, or calendar",
			Value:       "time",
			Destination: &addParams.Kind,
		},
		cli.StringFlag{
			Name:        "mode, m",
			Usage:       "ringer mode while active: silent, vibrate, or normal",
			Value:       "silent",
			Destination: &addParams.Mode,
		},
		cli.StringFlag{
			Name:        "actions",
			Usage:       "comma-separated side actions (wifi,bluetooth,data,dnd)",
			Destination: &addParams.Actions,
		},
		cli.StringFlag{
			Name:        "start",
			Usage:       "daily window start for time profiles (\"14:00\")",
			Destination: &addParams.StartClock,
		},
		cli.StringFlag{
			Name:        "end",
			Usage:       "daily window end for time profiles (\"15:00\")",
			Destination: &addParams.EndClock,
		},
		cli.StringFlag{
			Name:        "cron",
			Usage:       "cron expression replacing the daily recurrence",
			Destination: &addParams.CronExpr,
		},
		cli.IntFlag{
			Name:        "window",
			Usage:       "window length in minutes for cron profiles",
			Destination: &addParams.WindowMinutes,
		},
		cli.Float64Flag{
			Name:        "lat",
			Usage:       "geofence center latitude",
			Destination: &addParams.Latitude,
		},
		cli.Float64Flag{
			Name:        "lng",
			Usage:       "geofence center longitude",
			Destination: &addParams.Longitude,
		},
		cli.Float64Flag{
			Name:        "radius",
			Usage:       "geofence radius in meters",
			Destination: &addParams.RadiusMeters,
		},
		cli.StringFlag{
			Name:        "keyword",
			Usage:       "calendar event title filter",
			Destination: &addParams.Keyword,
		},
		cli.BoolFlag{
			Name:        "busy-only",
			Usage:       "match only busy calendar events",
			Destination: &addParams.BusyOnly,
		},
		cli.IntFlag{
			Name:        "pre-start",
			Usage:       "minutes to silence before a calendar event begins",
			Destination: &addParams.PreStartMin,
		},
	}

	usageSinceHours int

	usageFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "since",
			Usage:       "aggregation window in hours (0 = all history)",
			Value:       24,
			Destination: &usageSinceHours,
		},
	}
)

func printRuntimeErr(cmd, action string, err error) {
	fmt.Printf("hushctl: %s[%s]: %s\n", cmd, action, err.Error())
}

func connect(ctx *cli.Context) (*hushcli.Client, error) {
	return hushcli.NewClient(ctx.GlobalString("socket-addr"))
}

func add(ctx *cli.Context) error {
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("add", "connect", err)
		return nil
	}
	defer client.Close()

	p, err := client.AddProfile(&addParams)
	if err != nil {
		printRuntimeErr("add", "profile_add", err)
		return nil
	}
	fmt.Printf("hushctl: added %s profile %q (%s)\n", p.Kind, p.Name, p.ID)
	return nil
}

func list(ctx *cli.Context) error {
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("list", "connect", err)
		return nil
	}
	defer client.Close()

	profiles, err := client.ListProfiles()
	if err != nil {
		printRuntimeErr("list", "profile_list", err)
		return nil
	}
	if len(profiles) == 0 {
		fmt.Println("hushctl: no profiles found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tMODE\tACTIONS\tACTIVE")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n", p.ID, p.Name, p.Kind, p.Mode, p.Actions, p.Active)
	}
	return w.Flush()
}

func requireID(ctx *cli.Context, cmd string) (string, bool) {
	id := ctx.Args().First()
	if id == "" {
		fmt.Printf("hushctl: %s needs a profile id\n", cmd)
		cli.ShowCommandHelp(ctx, cmd)
		return "", false
	}
	return id, true
}

func enable(ctx *cli.Context) error {
	id, ok := requireID(ctx, "enable")
	if !ok {
		return nil
	}
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("enable", "connect", err)
		return nil
	}
	defer client.Close()

	if err := client.EnableProfile(id); err != nil {
		printRuntimeErr("enable", "profile_enable", err)
		return nil
	}
	fmt.Printf("hushctl: enabled %s\n", id)
	return nil
}

func disable(ctx *cli.Context) error {
	id, ok := requireID(ctx, "disable")
	if !ok {
		return nil
	}
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("disable", "connect", err)
		return nil
	}
	defer client.Close()

	if err := client.DisableProfile(id); err != nil {
		printRuntimeErr("disable", "profile_disable", err)
		return nil
	}
	fmt.Printf("hushctl: disabled %s\n", id)
	return nil
}

func remove(ctx *cli.Context) error {
	id, ok := requireID(ctx, "remove")
	if !ok {
		return nil
	}
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("remove", "connect", err)
		return nil
	}
	defer client.Close()

	if err := client.RemoveProfile(id); err != nil {
		printRuntimeErr("remove", "profile_remove", err)
		return nil
	}
	fmt.Printf("hushctl: removed %s\n", id)
	return nil
}

func active(ctx *cli.Context) error {
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("active", "connect", err)
		return nil
	}
	defer client.Close()

	triggers, err := client.ActiveTriggers()
	if err != nil {
		printRuntimeErr("active", "trigger_active", err)
		return nil
	}
	if len(triggers) == 0 {
		fmt.Println("hushctl: ringer is not held by any trigger")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMODE\tENGAGED\tUNTIL")
	for _, tr := range triggers {
		until := "open"
		if tr.WindowEnd != 0 {
			until = time.Unix(tr.WindowEnd, 0).Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tr.Key, tr.Mode, time.Unix(tr.EngagedAt, 0).Format(time.RFC3339), until)
	}
	return w.Flush()
}

func usageStats(ctx *cli.Context) error {
	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("usage", "connect", err)
		return nil
	}
	defer client.Close()

	s, err := client.Usage(usageSinceHours)
	if err != nil {
		printRuntimeErr("usage", "usage_summary", err)
		return nil
	}
	fmt.Printf("activations: %d\n", s.TotalActivations)
	if s.PeakHour >= 0 {
		fmt.Printf("peak hour:   %02d:00\n", s.PeakHour)
	}
	for mode, n := range s.ByMode {
		fmt.Printf("  %s: %d\n", mode, n)
	}
	if len(s.TopProfiles) > 0 {
		fmt.Println("top profiles:")
		for _, pc := range s.TopProfiles {
			fmt.Printf("  %s (%s): %d\n", pc.ProfileName, pc.ProfileID, pc.Activations)
		}
	}
	return nil
}

func locate(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) < 2 {
		fmt.Println("hushctl: locate needs latitude and longitude")
		cli.ShowCommandHelp(ctx, "locate")
		return nil
	}
	lat, err := strconv.ParseFloat(args.Get(0), 64)
	if err != nil {
		printRuntimeErr("locate", "parse_latitude", err)
		return nil
	}
	lng, err := strconv.ParseFloat(args.Get(1), 64)
	if err != nil {
		printRuntimeErr("locate", "parse_longitude", err)
		return nil
	}

	client, err := connect(ctx)
	if err != nil {
		printRuntimeErr("locate", "connect", err)
		return nil
	}
	defer client.Close()

	if err := client.UpdateLocation(lat, lng); err != nil {
		printRuntimeErr("locate", "location_update", err)
		return nil
	}
	fmt.Printf("hushctl: position updated to %.5f,%.5f\n", lat, lng)
	return nil
}

func getVersion(ctx *cli.Context) error {
	fmt.Printf("hushctl %s\n", version)
	client, err := connect(ctx)
	if err != nil {
		fmt.Println("hushd: not reachable")
		return nil
	}
	defer client.Close()

	v, err := client.Version()
	if err != nil {
		fmt.Println("hushd: not reachable")
		return nil
	}
	fmt.Printf("hushd   %s\n", v)
	return nil
}
