package main

import (
	"strings"
	"text/template"
	"unicode"

	"deedles.dev/wlc/protocol"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

func (ctx Context) funcs() template.FuncMap {
	return template.FuncMap{
		"ident":      ctx.ident,
		"sources":    ctx.sources,
		"interfaces": ctx.interfaces,
		"enumValue":  ctx.enumValue,
	}
}

func (ctx Context) ident(parts ...string) string {
	var buf strings.Builder
	for _, p := range parts {
		buf.WriteString(ctx.camel(p))
	}
	return buf.String()
}

func (ctx Context) camel(v string) string {
	var buf strings.Builder
	buf.Grow(len(v))
	shift := true
	for _, c := range v {
		if c == '_' || c == '-' {
			shift = true
			continue
		}

		if shift {
			c = unicode.ToUpper(c)
		}
		buf.WriteRune(c)
		shift = false
	}
	return buf.String()
}

func (ctx Context) sources() string {
	return strings.Join(ctx.Config.Sources, " ")
}

// interfaces returns every interface that declares at least one
// message. Enum-only interfaces are not possible in practice, but the
// generated const blocks would be empty for them.
func (ctx Context) interfaces(p protocol.Protocol) []protocol.Interface {
	return sliceutils.Filter(p.Interfaces, func(i protocol.Interface) bool {
		return len(i.Requests)+len(i.Events)+len(i.Enums) > 0
	})
}

func (ctx Context) enumValue(e protocol.Entry) string {
	return strings.ToLower(e.Value)
}
