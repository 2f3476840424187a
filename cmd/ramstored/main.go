// Command ramstored is an interactive shell over a single object
// manager instance, grounded on the teacher's repl/repl.go readline
// loop, repointed at write/read/remove/sync instead of CRDT object
// commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"

	"ramstore/hashindex"
	"ramstore/logstore"
	"ramstore/objectmanager"
	"ramstore/objstatus"
	"ramstore/replicamgr"
	"ramstore/tablet"
	"ramstore/utils"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("write"),
	readline.PcItem("read"),
	readline.PcItem("remove"),
	readline.PcItem("sync"),
	readline.PcItem("tablet"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// shell wires a readline loop to a Manager, parsing a tiny
// whitespace-separated command language: "write <table> <key> <value>",
// "read <table> <key>", "remove <table> <key>", "sync", "tablet <table> <start> [end]".
type shell struct {
	mgr *objectmanager.Manager
	rl  *readline.Instance
}

func (s *shell) open() error {
	var err error
	s.rl, err = readline.NewEx(&readline.Config{
		Prompt:              "ramstore> ",
		HistoryFile:         ".ramstored_history.txt",
		AutoComplete:        completer,
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	s.rl.CaptureExitSignal()
	return nil
}

func (s *shell) close() {
	if s.rl != nil {
		_ = s.rl.Close()
		s.rl = nil
	}
}

func parseTableId(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func (s *shell) dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "exit", "quit":
		return io.EOF
	case "help":
		fmt.Println("commands: write <table> <key> <value> | read <table> <key> | remove <table> <key> | sync | tablet <table> <start> [end]")
		return nil
	case "tablet":
		if len(args) < 2 {
			return errors.New("usage: tablet <table> <start> [end]")
		}
		end := []byte(nil)
		if len(args) >= 3 {
			end = []byte(args[2])
		}
		s.mgr.AddTablet(&tablet.Tablet{
			TableId:  parseTableId(args[0]),
			StartKey: []byte(args[1]),
			EndKey:   end,
			State:    tablet.StateNormal,
		})
		fmt.Println("tablet added")
		return nil
	case "write":
		if len(args) < 3 {
			return errors.New("usage: write <table> <key> <value>")
		}
		key := logstore.Key{TableId: parseTableId(args[0]), Bytes: []byte(args[1])}
		status, version := s.mgr.Write(key, []byte(strings.Join(args[2:], " ")), objectmanager.RejectRules{})
		fmt.Printf("%s version=%d\n", status, version)
		return nil
	case "read":
		if len(args) < 2 {
			return errors.New("usage: read <table> <key>")
		}
		key := logstore.Key{TableId: parseTableId(args[0]), Bytes: []byte(args[1])}
		status, value, version := s.mgr.Read(key, objectmanager.RejectRules{})
		if status != objstatus.OK {
			fmt.Printf("%s\n", status)
			return nil
		}
		fmt.Printf("%s version=%d value=%q\n", status, version, value)
		return nil
	case "remove":
		if len(args) < 2 {
			return errors.New("usage: remove <table> <key>")
		}
		key := logstore.Key{TableId: parseTableId(args[0]), Bytes: []byte(args[1])}
		status, version := s.mgr.Remove(key, objectmanager.RejectRules{})
		fmt.Printf("%s version=%d\n", status, version)
		return nil
	case "sync":
		if err := s.mgr.Sync(); err != nil {
			return err
		}
		fmt.Println("synced")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *shell) run() {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.dispatch(line); err != nil {
			if err == io.EOF {
				return
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func main() {
	dir := "ramstore-data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	logCfg := logstore.Config{Dir: dir}
	log, err := logstore.Open(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening log:", err)
		os.Exit(1)
	}
	defer log.Close()
	prometheus.MustRegister(log.Collector())

	index := hashindex.New(1024)
	tablets := tablet.New()
	logger := utils.NewDefaultLogger(slog.LevelInfo)
	replicas := replicamgr.New(logger)

	mgr := objectmanager.New(log, index, tablets, replicas, logger, objectmanager.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	sh := &shell{mgr: mgr}
	if err := sh.open(); err != nil {
		fmt.Fprintln(os.Stderr, "opening shell:", err)
		os.Exit(1)
	}
	defer sh.close()
	sh.run()
}
