package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/weaveworld/goweave/pkg/boltstore"
	"github.com/weaveworld/goweave/pkg/eval"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// evaltest evaluates script code against a world, for poking at
// property cascades and action code outside the server.

var levelNames = map[string]eval.Level{
	"raw":     eval.LevelRaw,
	"flat":    eval.LevelFlat,
	"message": eval.LevelMessage,
	"display": eval.LevelDisplay,
	"execute": eval.LevelExecute,
}

func main() {
	dbPath := flag.String("db", os.Getenv("WEAVE_DB"), "Path to bbolt world database (env: WEAVE_DB)")
	player := flag.String("player", "", "Player uid for the evaluation context")
	levelName := flag.String("level", "execute", "Evaluation level: raw, flat, message, display, execute")
	expr := flag.String("e", "", "Expression to evaluate (non-interactive mode)")
	batch := flag.String("batch", "", "File with expressions to evaluate (one per line)")
	flag.Parse()

	level, ok := levelNames[*levelName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown level: %s\n", *levelName)
		os.Exit(2)
	}

	var store worlddb.WorldStore
	uid := worlddb.PlayerID(*player)
	if *dbPath != "" {
		bolt, err := boltstore.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer bolt.Close()
		store = bolt
		if uid == "" {
			fmt.Fprintln(os.Stderr, "A -player uid is required with -db.")
			os.Exit(2)
		}
	} else {
		// No database: a tiny fixed world to poke at.
		store = demoStore()
		if uid == "" {
			uid = "u1"
		}
		fmt.Fprintln(os.Stderr, "No database named; using the built-in demo world.")
	}

	run := func(src string) {
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		// Each line runs as its own task, like one server command.
		bus := events.NewBus()
		sink := make(chanSub, 64)
		bus.Subscribe(uid, sink)

		tk := task.New(store, bus)
		tk.SetWritable()
		loctx, err := tk.GetLocContext(uid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		ctx := eval.NewContext(tk, loctx, level)
		res, err := ctx.Eval(src, eval.TypeCode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Println(worlddb.Stringify(res))
		}
		close(sink)
		for ev := range sink {
			fmt.Printf("  [%s] %s\n", ev.Type, ev.Text)
		}
	}

	switch {
	case *expr != "":
		run(*expr)
	case *batch != "":
		f, err := os.Open(*batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		scan := bufio.NewScanner(f)
		for scan.Scan() {
			ln := strings.TrimSpace(scan.Text())
			if ln == "" || strings.HasPrefix(ln, "#") {
				continue
			}
			fmt.Printf("> %s\n", ln)
			run(ln)
		}
	default:
		fmt.Printf("Evaluating as %s at level %s. Type quit to exit.\n", uid, *levelName)
		scan := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scan.Scan() {
				break
			}
			ln := strings.TrimSpace(scan.Text())
			if ln == "" {
				continue
			}
			if ln == "quit" || ln == "exit" {
				break
			}
			run(ln)
		}
	}
}

// chanSub adapts a channel to the event bus subscriber interface.
type chanSub chan events.Event

func (c chanSub) Receive(ev events.Event) {
	select {
	case c <- ev:
	default:
	}
}

func (c chanSub) Closed() bool { return false }

func demoStore() *worlddb.MemStore {
	store := worlddb.NewMemStore()
	store.AddWorld(&worlddb.World{WID: "w1", Name: "Demo", Creator: "u1", CreatorName: "Admin", Instancing: worlddb.InstancingStandard})
	store.AddScope(&worlddb.Scope{SID: "s1", Type: worlddb.ScopeGlobal})
	store.AddInstance(&worlddb.Instance{IID: "i1", WID: "w1", SID: "s1"})
	store.AddLocation(&worlddb.Location{LocID: "l1", WID: "w1", Key: "start", Name: "Start"})
	store.SetPlayer(&worlddb.Player{UID: "u1", Name: "Admin", Pronoun: "they", Desc: "the admin", SID: "s1"})
	store.SetPlayState(&worlddb.PlayState{UID: "u1", IID: "i1", LocID: "l1"})
	store.SeedProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", ID2: "l1", Name: "desc"},
		&worlddb.Text{Text: "A bare testing room."})
	store.SeedProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", Name: "greeting"}, "hello")
	return store
}
