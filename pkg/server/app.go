package server

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/weaveworld/goweave/pkg/eval"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// portinDelay is the beat between leaving for the void and arriving
// somewhere new.
const portinDelay = 1500 * time.Millisecond

// ClientMessage is the JSON message format for client commands.
type ClientMessage struct {
	Cmd     string `json:"cmd"`
	Text    string `json:"text,omitempty"`
	Action  string `json:"action,omitempty"`
	Val     string `json:"val,omitempty"`
	Pronoun string `json:"pronoun,omitempty"`
	Desc    string `json:"desc,omitempty"`
	UID     string `json:"uid,omitempty"`
}

// queued is one entry in the dispatch queue: a client command bound to
// its connection, or a server-internal command addressed to a player.
type queued struct {
	cmd  string
	uid  worlddb.PlayerID
	conn *PlayerConn // nil for server commands
	msg  ClientMessage
	data map[string]any
}

// App owns the world store, the event bus, the connection table, and
// the dispatch queue. Commands execute strictly one at a time on the
// Run goroutine; everything the evaluator touches is single-threaded.
type App struct {
	Store   worlddb.WorldStore
	Bus     *events.Bus
	Metrics *Metrics
	Journal *EventJournal

	conns *connTable
	queue chan queued

	confmu sync.Mutex
	conf   *Config
}

// NewApp wires an app over a store and config. The caller starts the
// command loop with Run and attaches transports.
func NewApp(store worlddb.WorldStore, conf *Config) *App {
	app := &App{
		Store: store,
		Bus:   events.NewBus(),
		conns: newConnTable(),
		queue: make(chan queued, 256),
		conf:  conf,
	}
	return app
}

// Config returns the current config. Live reload swaps the whole value.
func (app *App) Config() *Config {
	app.confmu.Lock()
	defer app.confmu.Unlock()
	return app.conf
}

// SetConfig installs a reloaded config.
func (app *App) SetConfig(conf *Config) {
	app.confmu.Lock()
	defer app.confmu.Unlock()
	app.conf = conf
}

// QueueClient enqueues a command arriving from a client connection.
func (app *App) QueueClient(conn *PlayerConn, msg ClientMessage) {
	app.queue <- queued{cmd: msg.Cmd, uid: conn.uid, conn: conn, msg: msg}
}

// QueueServer enqueues a server-internal command, after an optional
// delay. Delayed commands fire from a timer goroutine but still
// execute on the command loop.
func (app *App) QueueServer(cmd string, uid worlddb.PlayerID, data map[string]any, delay time.Duration) {
	entry := queued{cmd: cmd, uid: uid, data: data}
	if delay <= 0 {
		app.queue <- entry
		return
	}
	time.AfterFunc(delay, func() {
		app.queue <- entry
	})
}

// Run processes the dispatch queue until done is closed. This is the
// only goroutine that touches world state.
func (app *App) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case entry := <-app.queue:
			app.dispatch(entry)
		}
	}
}

// dispatch executes one command: look up the handler, run it inside a
// fresh task, resolve the task, and queue any follow-up commands.
func (app *App) dispatch(entry queued) {
	started := time.Now()
	def, ok := commandTable[entry.cmd]
	if !ok {
		log.Printf("server: unknown command %q from %s", entry.cmd, entry.uid)
		if entry.conn != nil {
			entry.conn.Receive(events.Event{Type: events.EvError, Player: entry.uid,
				Text: fmt.Sprintf("Command not understood: %s", entry.cmd)})
		}
		return
	}
	if def.server && entry.conn != nil {
		log.Printf("server: client %s sent server command %q", entry.uid, entry.cmd)
		entry.conn.Receive(events.Event{Type: events.EvError, Player: entry.uid,
			Text: fmt.Sprintf("Command not understood: %s", entry.cmd)})
		return
	}

	conf := app.Config()
	t := task.New(app.Store, app.Bus)
	if conf.TickLimit > 0 {
		t.TickLimit = conf.TickLimit
	}
	if conf.StackLimit > 0 {
		t.StackLimit = conf.StackLimit
	}
	if def.writes {
		t.SetWritable()
	}

	err := def.fn(app, t, entry)
	if err != nil {
		app.reportError(entry, err)
	}

	conns := app.conns.All()
	taskConns := make([]task.Conn, len(conns))
	for i, c := range conns {
		taskConns[i] = c
	}
	if rerr := t.Resolve(taskConns, func(conn task.Conn, dirty task.DirtyBits) error {
		return app.generateUpdate(t, conn.(*PlayerConn), dirty)
	}); rerr != nil {
		log.Printf("server: resolving %q: %v", entry.cmd, rerr)
	}

	for _, cmd := range t.DrainCommands() {
		app.QueueServer(cmd.Cmd, cmd.UID, cmd.Data, 0)
	}

	app.Metrics.noteCommand(entry.cmd, time.Since(started), t.Ticks(), err != nil)
}

// reportError routes a handler failure back to the player. Message
// errors are narrative, not failures; everything else is sent as an
// error event.
func (app *App) reportError(entry queued, err error) {
	var msgerr *eval.MessageError
	if errors.As(err, &msgerr) {
		app.writeToPlayer(entry, events.Event{Type: events.EvMessage, Player: entry.uid, Text: msgerr.Text})
		return
	}
	log.Printf("server: command %q for %s failed: %v", entry.cmd, entry.uid, err)
	var cmderr *eval.CommandError
	text := err.Error()
	if errors.As(err, &cmderr) {
		text = cmderr.Text
	}
	app.writeToPlayer(entry, events.Event{Type: events.EvError, Player: entry.uid, Text: text})
}

// writeToPlayer delivers an event to the originating connection if the
// command came from one, otherwise to every connection of the player.
func (app *App) writeToPlayer(entry queued, ev events.Event) {
	if entry.conn != nil {
		entry.conn.Receive(ev)
		return
	}
	app.Bus.EmitToPlayer(entry.uid, ev)
}

// AttachConn registers a connection with the table and the bus, and
// queues the initial full refresh.
func (app *App) AttachConn(c *PlayerConn) {
	app.conns.Add(c)
	app.Bus.Subscribe(c.uid, c)
	if app.Metrics != nil {
		app.Metrics.connectionsTotal.Inc()
	}
	app.QueueServer("refresh", c.uid, map[string]any{"connid": c.id}, 0)
}

// DetachConn unregisters a closed connection.
func (app *App) DetachConn(c *PlayerConn) {
	c.Close()
	app.conns.Remove(c)
	app.Bus.Unsubscribe(c.uid, c)
}
