package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	dllproxy "github.com/carved4/go-dllproxy"
)

func mainE() error {
	var (
		input, outDir, loader string
		pack, dllMain         bool
		strict, quiet         bool
	)
	flag.StringVar(&input, "i", "", "Input DLL to proxy")
	flag.StringVar(&outDir, "o", "", "Output directory (default ./<input name>)")
	flag.BoolVar(&pack, "pack", false, "Embed the original DLL in the generated project")
	flag.BoolVar(&dllMain, "dll-main", false, "Emit a DllMain that calls the initializer")
	flag.StringVar(&loader, "loader", string(dllproxy.DefaultKind()), "Export loader: native, image or saferwall")
	flag.BoolVar(&strict, "strict", false, "Fail on duplicate export symbols")
	flag.BoolVar(&quiet, "q", false, "Suppress progress output")
	flag.Parse()

	if input == "" {
		if flag.NArg() != 1 {
			return errors.New("flag -i is required")
		}
		input = flag.Arg(0)
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input %s: %w", input, err)
	}
	kind, err := dllproxy.ParseKind(loader)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = dllproxy.BinaryName(input)
	}

	logger := log.New(os.Stderr, "dllproxy: ", 0)
	info := logger
	if quiet {
		info = log.New(io.Discard, "", 0)
	}

	info.Printf("[*] reading exports of %s (%s loader)", input, kind)
	p := dllproxy.Project{
		PackOriginal:  pack,
		EmitEntryStub: dllMain,
		Strict:        strict,
		Logger:        logger,
	}
	arts, err := dllproxy.Proxy(input, outDir, kind, p, os.Stdout)
	if err != nil {
		return err
	}
	for _, a := range arts {
		info.Printf("[+] %s", filepath.Join(outDir, a.Name))
	}
	return nil
}

func main() {
	if err := mainE(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
