package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/weaveworld/goweave/pkg/boltstore"
	"github.com/weaveworld/goweave/pkg/worldfile"
)

// worldload pushes a world definition file into the world database.
// This is an administrator tool; it does no permission checking and can
// modify or overwrite any world.

func main() {
	dbPath := flag.String("db", os.Getenv("WEAVE_DB"), "Path to bbolt world database (env: WEAVE_DB)")
	check := flag.Bool("check", false, "Only check consistency of the file")
	display := flag.Bool("display", false, "Only display the named target (., $player, loc, or loc.prop)")
	remove := flag.Bool("remove", false, "Remove the named target's properties instead of loading")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: worldload [-db world.db] [-check|-display|-remove] <file.wld> [targets...]")
		fmt.Fprintln(os.Stderr, "  Targets name property groups: . (world), $player, a location key,")
		fmt.Fprintln(os.Stderr, "  or group.propname. With no targets, everything in the file.")
		os.Exit(2)
	}
	path := args[0]
	targets := args[1:]

	def, err := worldfile.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, msg := range def.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	for _, msg := range def.Check() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	}
	if len(def.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d errors; stopping here.\n", len(def.Errors))
		os.Exit(1)
	}

	if *display {
		displayTargets(def, targets)
		return
	}
	if *check {
		return
	}

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: no world database named (-db or WEAVE_DB)")
		os.Exit(2)
	}
	store, err := boltstore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *remove {
		removeTargets(store, def, targets)
		return
	}

	w, err := worldfile.Apply(store, def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded world %q (%s)\n", w.Name, w.WID)
}

// splitTarget breaks "group.prop" into its parts. A bare group has an
// empty prop; "." names the world group itself.
func splitTarget(val string) (group, prop string) {
	group, prop, _ = strings.Cut(val, ".")
	return group, prop
}

func displayTargets(def *worldfile.WorldDef, targets []string) {
	if len(targets) == 0 {
		targets = append([]string{".", "$player"}, def.LocationList...)
	}
	for _, val := range targets {
		group, prop := splitTarget(val)
		switch group {
		case "":
			displayGroup("* (world properties)", def.Props, def.PropList, prop)
		case "$player":
			displayGroup("* (player properties)", def.PlayerProps, def.PlayerPropList, prop)
		default:
			loc, ok := def.Locations[group]
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: location not found: %s\n", group)
				continue
			}
			displayGroup(fmt.Sprintf("* %s: %s", loc.Key, loc.Name), loc.Props, loc.PropList, prop)
		}
	}
}

func displayGroup(header string, props map[string]any, list []string, prop string) {
	fmt.Println(header)
	fmt.Println()
	if prop != "" {
		if _, ok := props[prop]; !ok {
			fmt.Fprintf(os.Stderr, "Error: property not found: %s\n", prop)
			return
		}
		list = []string{prop}
	}
	for _, key := range list {
		fmt.Printf("%s: %s\n", key, worldfile.FormatProp(props[key]))
		fmt.Println()
	}
}

func removeTargets(store *boltstore.Store, def *worldfile.WorldDef, targets []string) {
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -remove needs explicit targets")
		os.Exit(1)
	}
	w, err := worldfile.FindWorld(store, def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, val := range targets {
		group, prop := splitTarget(val)
		if err := worldfile.RemoveProps(store, w.WID, group, prop); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("Removed %s\n", val)
	}
}
