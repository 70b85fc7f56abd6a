// pooly is a simple CLI for poking at slotpool tables.
//
// Usage:
//
//	pooly new [opts]        Create a table from flags (prompting for gaps)
//	pooly <def.jsonc>       Create a table from a JSONC definition file
//
// Options for 'new' command:
//
//	-n, --name         Table name (default: prompts)
//	-c, --capacity     Slot capacity (default: prompts)
//	-s, --stride       Record stride in bytes (default: prompts)
//	-a, --align-bits   Record alignment in bits (default: 0)
//	-m, --mmap         Back the arena with an anonymous mapping
//
// Definition file (JSONC, comments and trailing commas allowed):
//
//	{
//	    "name": "players",
//	    "capacity": 16,
//	    "stride": 32,       // bytes per record
//	    "align_bits": 3,
//	    "mmap": false,
//	}
//
// Commands (in REPL):
//
//	alloc [alt]       Allocate a slot (alt = alternate generation mode)
//	free <handle>     Free a slot through its handle
//	get <handle>      Resolve a handle and print the record bytes
//	ls                List all live slots
//	info              Show table info
//	bulk <count>      Allocate N slots
//	dump <file>       Write the live-slot listing to a file (atomic)
//	help              Show this help
//	exit / quit / q   Exit
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/slotpool/pkg/slotpool"
)

// poolDef is the JSONC table definition format.
type poolDef struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Stride    int    `json:"stride"`
	AlignBits uint8  `json:"align_bits"`
	Mmap      bool   `json:"mmap"`
}

// loadPoolDef reads a JSONC definition file.
func loadPoolDef(path string) (poolDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return poolDef{}, err
	}

	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return poolDef{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var def poolDef
	if err := json.Unmarshal(standardized, &def); err != nil {
		return poolDef{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return def, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command or definition file path")
	}

	if isHelpArg(os.Args[1]) {
		printUsage()
		return nil
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}

	return runFromDef(os.Args[1])
}

// isHelpArg reports whether arg asks for top-level usage rather than
// naming a command or a definition file.
func isHelpArg(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  pooly new [opts]     Create a table from flags\n")
	fmt.Fprintf(os.Stderr, "  pooly <def.jsonc>    Create a table from a definition file\n")
	fmt.Fprintf(os.Stderr, "\nRun 'pooly new --help' for flag details.\n")
}

func runNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)

	name := fs.StringP("name", "n", "", "table name")
	capacity := fs.IntP("capacity", "c", 0, "slot capacity")
	stride := fs.IntP("stride", "s", 0, "record stride in bytes")
	alignBits := fs.Uint8P("align-bits", "a", 0, "record alignment in bits")
	useMmap := fs.BoolP("mmap", "m", false, "back the arena with an anonymous mapping")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pooly new [options]\n\n")
		fmt.Fprintf(os.Stderr, "Create a table. If options are not provided, you will be prompted.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	// Prompt for values not provided via flags
	if *name == "" {
		*name = promptString(reader, "Table name", "scratch")
	}

	if *capacity == 0 {
		*capacity = promptInt(reader, "Slot capacity", 16)
	}

	if *stride == 0 {
		*stride = promptInt(reader, "Record stride in bytes", 8)
	}

	return startREPL(poolDef{
		Name:      *name,
		Capacity:  *capacity,
		Stride:    *stride,
		AlignBits: *alignBits,
		Mmap:      *useMmap,
	})
}

func runFromDef(path string) error {
	def, err := loadPoolDef(path)
	if err != nil {
		return fmt.Errorf("reading definition %s: %w", path, err)
	}

	return startREPL(def)
}

func startREPL(def poolDef) error {
	backing := slotpool.BackingHeap
	if def.Mmap {
		backing = slotpool.BackingMmap
	}

	table, err := slotpool.New(slotpool.Options{
		Name:      def.Name,
		Capacity:  def.Capacity,
		Stride:    def.Stride,
		AlignBits: def.AlignBits,
		Backing:   backing,
	})
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	defer table.Close()

	fmt.Printf("\nCreated table with:\n")
	fmt.Printf("  Name:        %s\n", def.Name)
	fmt.Printf("  Capacity:    %d slots\n", def.Capacity)
	fmt.Printf("  Stride:      %d bytes\n", def.Stride)
	fmt.Printf("  Align bits:  %d\n", def.AlignBits)
	fmt.Printf("  Mmap arena:  %v\n", def.Mmap)
	fmt.Println()

	repl := &REPL{
		table: table,
		alloc: slotpool.NewAllocator(table),
	}

	return repl.Run()
}

// promptString prompts the user for a string value with a default.
func promptString(reader *bufio.Reader, prompt, defaultVal string) string {
	fmt.Printf("%s [%s]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	return input
}

// promptInt prompts the user for an integer value with a default.
func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	for {
		fmt.Printf("%s [%d]: ", prompt, defaultVal)

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input == "" {
			return defaultVal
		}

		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Println("Please enter a valid integer.")
			continue
		}

		return val
	}
}

// REPL is the interactive command loop.
type REPL struct {
	table *slotpool.Table
	alloc *slotpool.Allocator
	liner *liner.State
}

var replCommands = []string{
	"alloc", "free", "get", "ls", "info", "bulk", "dump", "help", "exit", "quit",
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pooly_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var out []string
		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				out = append(out, cmd)
			}
		}
		return out
	})

	// Load history
	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("pooly - slotpool CLI (table %q, %d slots)\n", r.table.Name(), r.table.Capacity())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("pooly> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "alloc":
			r.cmdAlloc(args)

		case "free":
			r.cmdFree(args)

		case "get":
			r.cmdGet(args)

		case "ls", "list":
			r.cmdList()

		case "info":
			r.cmdInfo()

		case "bulk":
			r.cmdBulk(args)

		case "dump":
			r.cmdDump(args)

		default:
			fmt.Printf("unknown command %q (try 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  alloc [alt]       Allocate a slot (alt = alternate generation mode)")
	fmt.Println("  free <handle>     Free a slot through its handle (gen:slot)")
	fmt.Println("  get <handle>      Resolve a handle and print the record bytes")
	fmt.Println("  ls                List all live slots")
	fmt.Println("  info              Show table info")
	fmt.Println("  bulk <count>      Allocate N slots")
	fmt.Println("  dump <file>       Write the live-slot listing to a file (atomic)")
	fmt.Println("  exit / quit / q   Exit")
}

// parseHandle accepts the "gen:slot" form printed by Handle.String, or a
// raw 32-bit value ("0x..." or decimal).
func parseHandle(s string) (slotpool.Handle, error) {
	if gen, slot, ok := strings.Cut(s, ":"); ok {
		g, err := strconv.ParseUint(gen, 10, 16)
		if err != nil {
			return slotpool.Nil, fmt.Errorf("bad generation %q", gen)
		}

		i, err := strconv.ParseUint(slot, 10, 16)
		if err != nil {
			return slotpool.Nil, fmt.Errorf("bad slot %q", slot)
		}

		return slotpool.NewHandle(uint16(g), uint16(i)), nil
	}

	raw, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return slotpool.Nil, fmt.Errorf("bad handle %q (want gen:slot or a 32-bit value)", s)
	}

	return slotpool.Handle(raw), nil
}

func (r *REPL) cmdAlloc(args []string) {
	alt := len(args) > 0 && strings.EqualFold(args[0], "alt")

	var (
		h   slotpool.Handle
		err error
	)

	if alt {
		h, err = r.alloc.AllocateAlt()
	} else {
		h, err = r.alloc.Allocate()
	}

	if err != nil {
		fmt.Printf("alloc failed: %v\n", err)
		return
	}

	fmt.Printf("allocated %v (raw %#08x)\n", h, uint32(h))
}

func (r *REPL) cmdFree(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: free <handle>")
		return
	}

	h, err := parseHandle(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := r.alloc.Free(h); err != nil {
		fmt.Printf("free failed: %v\n", err)
		return
	}

	fmt.Printf("freed %v\n", h)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <handle>")
		return
	}

	h, err := parseHandle(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	rec, ok := r.table.CheckedGet(h)
	if !ok {
		fmt.Printf("%v does not resolve (nil, stale, or out of range)\n", h)
		return
	}

	fmt.Printf("%v -> slot %d, record % x\n", h, h.Slot(), rec)
}

func (r *REPL) cmdList() {
	count := 0

	it := slotpool.NewIterator(r.table)
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}

		fmt.Printf("  %-12v slot %-5d % x\n", it.Handle(), it.Index(), rec)
		count++
	}

	fmt.Printf("%d live slot(s)\n", count)
}

func (r *REPL) cmdInfo() {
	fmt.Printf("Name:      %s\n", r.table.Name())
	fmt.Printf("Capacity:  %d\n", r.table.Capacity())
	fmt.Printf("Stride:    %d bytes\n", r.table.Stride())
	fmt.Printf("Live:      %d\n", r.table.Len())
	fmt.Printf("Free:      %d\n", r.table.Capacity()-r.table.Len())
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: bulk <count>")
		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Printf("bad count %q\n", args[0])
		return
	}

	for i := range count {
		if _, err := r.alloc.Allocate(); err != nil {
			fmt.Printf("stopped after %d: %v\n", i, err)
			return
		}
	}

	fmt.Printf("allocated %d slot(s), %d live\n", count, r.table.Len())
}

func (r *REPL) cmdDump(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: dump <file>")
		return
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "# table %q: %d/%d slots live\n",
		r.table.Name(), r.table.Len(), r.table.Capacity())

	it := slotpool.NewIterator(r.table)
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}

		fmt.Fprintf(&sb, "%v\tslot %d\t% x\n", it.Handle(), it.Index(), rec)
	}

	if err := atomic.WriteFile(args[0], strings.NewReader(sb.String())); err != nil {
		fmt.Printf("dump failed: %v\n", err)
		return
	}

	fmt.Printf("wrote %s\n", args[0])
}
