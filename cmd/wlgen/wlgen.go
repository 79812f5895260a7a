// wlgen generates opcode and enum constants from protocol XML files.
//
//	wlgen -pkg proto -out proto/proto.go protocol/xml/*.xml
package main

import (
	"bytes"
	_ "embed"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/protocol"
	"golang.org/x/exp/slices"
)

//go:embed proto.tmpl
var tmplSource string

type Config struct {
	Package string
	Sources []string
}

type Context struct {
	Config    Config
	Protocols []protocol.Protocol
	T         *template.Template
}

func loadXML(path string) (protocol.Protocol, error) {
	file, err := os.Open(path)
	if err != nil {
		return protocol.Protocol{}, err
	}
	defer file.Close()

	return protocol.Decode(file)
}

func run(ctx Context, out string) error {
	for _, path := range ctx.Config.Sources {
		proto, err := loadXML(path)
		if err != nil {
			return fmt.Errorf("load %q: %w", path, err)
		}
		ctx.Protocols = append(ctx.Protocols, proto)
	}

	// The set is only built to validate enum references.
	_, err := protocol.NewSet(ctx.Protocols...)
	if err != nil {
		return fmt.Errorf("validate protocols: %w", err)
	}

	var buf bytes.Buffer
	err = ctx.T.ExecuteTemplate(&buf, "main", ctx)
	if err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format output: %w\n%s", err, buf.Bytes())
	}

	if out == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	return os.WriteFile(out, src, 0644)
}

func main() {
	out := flag.String("out", "", "output file (default stdout)")
	pkg := flag.String("pkg", "proto", "output package name")
	flag.Parse()

	logger := log.For("wlgen")

	sources := slices.Clone(flag.Args())
	slices.SortFunc(sources, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})
	if len(sources) == 0 {
		logger.Fatal("no protocol XML files given")
	}

	ctx := Context{
		Config: Config{
			Package: *pkg,
			Sources: sources,
		},
	}
	ctx.T = template.Must(template.New("main").Funcs(ctx.funcs()).Parse(tmplSource))

	err := run(ctx, *out)
	if err != nil {
		logger.Fatalf("generate: %v", err)
	}
}
