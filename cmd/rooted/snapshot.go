package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/chazu/rooted/config"
	"github.com/chazu/rooted/gc"
	"github.com/chazu/rooted/heapdump"
)

// handleSnapshotCommand processes the `rooted snapshot` subcommand.
// Usage:
//
//	rooted snapshot list
//	rooted snapshot show <id>
//	rooted snapshot why <id> <object> [max-paths]
//	rooted snapshot delete <id>
func handleSnapshotCommand(args []string, cfg *config.Config) {
	if len(args) == 0 {
		fatalf("snapshot requires a subcommand: list, show, why or delete")
	}
	ctx := context.Background()

	st, err := heapdump.OpenStore(ctx, cfg.SnapshotPath())
	if err != nil {
		fatalf("%v", err)
	}
	defer st.Close()

	switch args[0] {
	case "list":
		entries, err := st.List(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		for _, e := range entries {
			fmt.Printf("%4d  %s  %-20s %6d objects %4d roots\n",
				e.ID, e.Taken.Format("2006-01-02 15:04:05"), e.Label, e.Objects, e.Roots)
		}

	case "show":
		snap := loadSnapshot(ctx, st, args, 2)
		fmt.Printf("%s: %d objects, %d roots, %d garbage\n",
			snap.Label, len(snap.Objects), len(snap.Roots), len(snap.Garbage()))
		counts := snap.CountByType()
		for _, typ := range slices.Sorted(maps.Keys(counts)) {
			fmt.Printf("  %-24s %d\n", typ, counts[typ])
		}
		for _, r := range snap.Roots {
			fmt.Printf("  root %s (%s)\n", r.ID, r.Source)
		}

	case "why":
		snap := loadSnapshot(ctx, st, args, 3)
		obj := parseID(args[2], "object")
		maxPaths := 3
		if len(args) > 3 {
			maxPaths = int(parseID(args[3], "max-paths"))
		}
		if _, ok := snap.Object(obj); !ok {
			fatalf("object %s not in snapshot", obj)
		}
		paths := snap.PathsToRoots(obj, maxPaths)
		if len(paths) == 0 {
			fmt.Printf("%s is unreachable: the next collection sweeps it\n", obj)
			return
		}
		for _, p := range paths {
			fmt.Println(p.Format(snap))
		}

	case "delete":
		if len(args) < 2 {
			fatalf("snapshot delete requires an id")
		}
		if err := st.Delete(ctx, int64(parseID(args[1], "snapshot id"))); err != nil {
			fatalf("%v", err)
		}

	default:
		fatalf("unknown snapshot subcommand %q", args[0])
	}
}

func loadSnapshot(ctx context.Context, st *heapdump.Store, args []string, need int) *heapdump.Snapshot {
	if len(args) < need {
		fatalf("snapshot %s requires %d argument(s)", args[0], need-1)
	}
	snap, err := st.Load(ctx, int64(parseID(args[1], "snapshot id")))
	if err != nil {
		fatalf("%v", err)
	}
	return snap
}

func parseID(s, what string) gc.ID {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		fatalf("invalid %s %q", what, s)
	}
	return gc.ID(n)
}
