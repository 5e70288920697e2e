// Kestrel CLI - compiles and runs Kestrel programs
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	compileOut := flag.String("c", "", "Compile the source file to a .ksc image at this path instead of running it")
	disasm := flag.Bool("d", false, "Print a disassembly listing instead of running")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	configDir := flag.String("config", "", "Directory to search for kestrel.toml (default: current directory)")
	metricsOut := flag.String("metrics-out", "", "Write Prometheus metrics to this textfile on exit")
	noCache := flag.Bool("no-cache", false, "Bypass the compiled image cache")
	trace := flag.Bool("trace", false, "Log every executed instruction")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kestrel [options] [file.ks | file.ksc]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Kestrel program. Without a file, runs the entry of kestrel.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kestrel main.ks                # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  kestrel -c main.ksc main.ks    # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  kestrel main.ksc               # Run an image\n")
		fmt.Fprintf(os.Stderr, "  kestrel -d main.ks             # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  kestrel -lsp                   # Start language server\n")
	}
	flag.Parse()

	dir := *configDir
	if dir == "" {
		dir = "."
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	verbosity := cfg.Log.Verbosity
	if *verbose {
		verbosity = 2
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	if *lspMode && logFile == nil {
		// stdout and stderr belong to the client
		verbosity = -4
	}
	commonlog.Configure(verbosity, logFile)

	if *trace {
		cfg.VM.Trace = true
	}
	if *noCache {
		cfg.Cache.Enabled = false
	}
	if *metricsOut != "" {
		cfg.Metrics.Textfile = *metricsOut
	}

	if *lspMode {
		modules, err := cfg.Registry()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		srv := server.NewLSP(cfg.CompilerOptions("", modules))
		if err := srv.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Language server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path := cfg.EntryPath()
	switch flag.NArg() {
	case 0:
	case 1:
		path = flag.Arg(0)
	default:
		flag.Usage()
		os.Exit(2)
	}

	app, err := newApp(cfg, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	var code int
	switch {
	case *compileOut != "":
		code = app.compileImage(path, *compileOut)
	case *disasm:
		code = app.disassemble(path)
	default:
		code = app.run(path)
	}
	if err := app.close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	os.Exit(code)
}
