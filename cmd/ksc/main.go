package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/peterh/liner"

	kernelscript "github.com/kernelscript/ksc"
)

const (
	appName     = "ksc"
	historyFile = ".ksc_history"
	promptMain  = "ksc> "
)

var helpText = `
explain commands:
  :defs            List every definition in the file
  :names <def>     Annotation identifiers and which are external
  :scopes <def>    Enclosing scope path
  :ann <def>       Annotation texts
  :tree <def>      Dump the definition's syntax tree
  :help            Show this help
  :quit            Exit

<def> is a qualified name from :defs, or a bare name when unambiguous.
`

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "scan":
		os.Exit(cmdScan(os.Args[2:]))
	case "diff":
		os.Exit(cmdDiff(os.Args[2:]))
	case "explain":
		os.Exit(cmdExplain(os.Args[2:]))
	case "version":
		fmt.Println(kernelscript.Version)
		return
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`KernelScript frontend tools %s (built %s)

Usage:
  %s scan <file.ks> [--json] [--config PATH]   Print the capture plan for a script.
  %s diff <old.ks> <new.ks> [--config PATH]    Diff two capture plans; exit 1 when they differ.
  %s explain <file.ks> [--config PATH]         Inspect a script interactively.
  %s version                                   Print the compiled version.

`, kernelscript.Version, kernelscript.BuildDate, appName, appName, appName, appName)
}

// -----------------------------------------------------------------------------
// scan
// -----------------------------------------------------------------------------

type scanOptions struct {
	JSON   bool   `long:"json" description:"emit the capture plan as JSON"`
	Config string `long:"config" value-name:"PATH" description:"config file (default: search upward for .ksc.yaml)"`
}

func cmdScan(args []string) int {
	var opts scanOptions
	rest, code := parseFlags(&opts, args, "scan <file.ks> [--json] [--config PATH]")
	if code >= 0 {
		return code
	}
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s scan <file.ks> [--json] [--config PATH]\n", appName)
		return 2
	}

	rep, code := buildPlan(rest[0], opts.Config)
	if rep == nil {
		return code
	}
	if opts.JSON {
		out, err := rep.JSON()
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}
		fmt.Print(out)
		return 0
	}
	fmt.Print(rep.Format())
	return 0
}

// -----------------------------------------------------------------------------
// diff
// -----------------------------------------------------------------------------

type diffOptions struct {
	Config string `long:"config" value-name:"PATH" description:"config file (default: search upward for .ksc.yaml)"`
}

func cmdDiff(args []string) int {
	var opts diffOptions
	rest, code := parseFlags(&opts, args, "diff <old.ks> <new.ks> [--config PATH]")
	if code >= 0 {
		return code
	}
	if len(rest) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s diff <old.ks> <new.ks> [--config PATH]\n", appName)
		return 2
	}

	oldRep, code := buildPlan(rest[0], opts.Config)
	if oldRep == nil {
		return code
	}
	newRep, code := buildPlan(rest[1], opts.Config)
	if newRep == nil {
		return code
	}

	text, err := kernelscript.DiffReports(oldRep, newRep)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	if text == "" {
		return 0
	}
	fmt.Print(text)
	return 1
}

// -----------------------------------------------------------------------------
// explain
// -----------------------------------------------------------------------------

type explainOptions struct {
	Config string `long:"config" value-name:"PATH" description:"config file (default: search upward for .ksc.yaml)"`
}

func cmdExplain(args []string) (ret int) {
	var opts explainOptions
	rest, code := parseFlags(&opts, args, "explain <file.ks> [--config PATH]")
	if code >= 0 {
		return code
	}
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s explain <file.ks> [--config PATH]\n", appName)
		return 2
	}

	path := rest[0]
	file, code := loadScript(path)
	if file == nil {
		return code
	}
	cfg, err := kernelscript.ResolveConfig(opts.Config, filepath.Dir(path))
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	rep, err := kernelscript.BuildReport(file, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}

	fmt.Printf("KernelScript %s explain: %s (%d definitions)\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands.\n",
		kernelscript.Version, path, len(rep.Defs))

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if err != nil {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		fields := strings.Fields(line)
		switch fields[0] {
		case ":quit", ":q":
			return 0
		case ":help":
			fmt.Print(helpText)
		case ":defs":
			for _, d := range rep.Defs {
				fmt.Printf("%-5s %s\n", d.Kind, d.QualName)
			}
		case ":names":
			if d := lookupArg(rep, fields); d != nil {
				fmt.Printf("names:    %s\n", orNone(d.Names))
				fmt.Printf("external: %s\n", orNone(d.External))
			}
		case ":scopes":
			if d := lookupArg(rep, fields); d != nil {
				if len(d.Scopes) == 0 {
					fmt.Println("(top level)")
				} else {
					fmt.Println(strings.Join(d.Scopes, " > "))
				}
			}
		case ":ann":
			if d := lookupArg(rep, fields); d != nil {
				printAnnotations(d)
			}
		case ":tree":
			if d := lookupArg(rep, fields); d != nil {
				tree, err := kernelscript.DefTree(file, d.QualName)
				if err != nil {
					fmt.Fprintln(os.Stderr, red(err.Error()))
					continue
				}
				dump, err := json.MarshalIndent(tree, "", "  ")
				if err != nil {
					fmt.Fprintln(os.Stderr, red(err.Error()))
					continue
				}
				fmt.Println(string(dump))
			}
		default:
			fmt.Println("unknown command. Type :help for commands.")
		}
	}
}

func lookupArg(rep *kernelscript.Report, fields []string) *kernelscript.DefInfo {
	if len(fields) < 2 {
		fmt.Printf("usage: %s <def>\n", fields[0])
		return nil
	}
	d := rep.Lookup(fields[1])
	if d == nil {
		fmt.Printf("no definition %q (try :defs)\n", fields[1])
	}
	return d
}

func printAnnotations(d *kernelscript.DefInfo) {
	if len(d.Annotations) == 0 {
		fmt.Println("(no annotations)")
		return
	}
	for _, p := range d.Params {
		if t, ok := d.Annotations[p]; ok {
			fmt.Printf("%s: %s\n", p, t)
		}
	}
	if t, ok := d.Annotations[kernelscript.RetKey]; ok {
		fmt.Printf("%s: %s\n", kernelscript.RetKey, t)
	}
}

func orNone(xs []string) string {
	if len(xs) == 0 {
		return "(none)"
	}
	return strings.Join(xs, ", ")
}

// -----------------------------------------------------------------------------
// shared plumbing
// -----------------------------------------------------------------------------

// parseFlags parses args into opts. The returned code is -1 to proceed,
// otherwise the exit code to return (help shown, or bad flags).
func parseFlags(opts interface{}, args []string, usageLine string) ([]string, int) {
	p := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	p.Usage = usageLine
	rest, err := p.ParseArgs(args)
	if err != nil {
		if flags.WroteHelp(err) {
			fmt.Println(err)
			return nil, 0
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return nil, 2
	}
	return rest, -1
}

// loadScript reads a script file. A nil file means failure; the returned
// code is the exit code.
func loadScript(path string) (*kernelscript.ScriptFile, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, path, err)
		return nil, 1
	}
	return kernelscript.NewScriptFile(path, string(data)), 0
}

// buildPlan loads a script and builds its capture plan. A nil report means
// failure; the returned code is the exit code.
func buildPlan(path, cfgPath string) (*kernelscript.Report, int) {
	file, code := loadScript(path)
	if file == nil {
		return nil, code
	}
	cfg, err := kernelscript.ResolveConfig(cfgPath, filepath.Dir(path))
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return nil, 1
	}
	rep, err := kernelscript.BuildReport(file, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return nil, 1
	}
	return rep, 0
}
