package worldfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/weaveworld/goweave/pkg/markup"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Load reads a world definition from disk.
func Load(path string) (*WorldDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worldfile: open: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a world definition. Only I/O failures come back as an
// error; problems with the file content land in the definition's
// Errors list, so a single pass reports them all.
func Parse(r io.Reader) (*WorldDef, error) {
	p := &parser{def: newWorldDef(), curBase: -1}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		p.line++
		if !p.parseLine(scan.Text()) {
			break
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("worldfile: read: %w", err)
	}
	return p.def, nil
}

type parser struct {
	def       *WorldDef
	line      int
	curloc    *LocationDef
	curprop   string
	curPlayer bool // curprop names a player property
	curBase   int  // indent of the first continuation line of a code/gentext prop
}

func (p *parser) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.def.Errors = append(p.def.Errors, fmt.Sprintf("line %d: %s", p.line, msg))
}

func (p *parser) resetProp() {
	p.curprop = ""
	p.curPlayer = false
	p.curBase = -1
}

// parseLine consumes one line. It returns false at the *** terminator.
func (p *parser) parseLine(raw string) bool {
	ln := strings.TrimRight(raw, " \t\r")
	trimmed := strings.TrimLeft(ln, " \t")
	indent := len(ln) - len(trimmed)
	ln = trimmed

	if ln == "" || strings.HasPrefix(ln, "#") {
		return true
	}
	if strings.HasPrefix(ln, "***") {
		return false
	}

	if strings.HasPrefix(ln, "*") {
		// New location block. Properties after this line belong to it,
		// and a bare indented line extends its desc.
		lockey, locname, _ := strings.Cut(ln[1:], ":")
		lockey = strings.TrimSpace(lockey)
		locname = strings.TrimSpace(locname)
		if locname == "" {
			locname = lockey
			lockey = markup.Slug(locname)
		}
		if _, ok := p.def.Locations[lockey]; ok {
			p.errorf("location defined twice: %s", lockey)
		}
		loc := newLocationDef(lockey, locname)
		p.def.Locations[lockey] = loc
		p.def.LocationList = append(p.def.LocationList, lockey)
		p.curloc = loc
		p.resetProp()
		p.curprop = "desc"
		return true
	}

	if indent > 0 && p.curprop != "" {
		p.appendContinuation(ln, indent)
		return true
	}

	key, val, ok := strings.Cut(ln, ":")
	if !ok {
		p.errorf("line does not define a property: %.36s", ln)
		return true
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	if p.curloc == nil && strings.HasPrefix(key, "$") {
		p.parseDirective(key, val)
		return true
	}

	if !isIdentifier(key) {
		p.errorf("property key is not valid: %s", key)
	}

	propval := p.parseValue(val)
	p.curBase = -1
	p.curPlayer = false
	p.curprop = key
	if p.curloc == nil {
		if _, dup := p.def.Props[key]; dup {
			p.errorf("world key defined twice: %s", key)
		} else {
			p.def.PropList = append(p.def.PropList, key)
		}
		p.def.Props[key] = propval
	} else {
		if _, dup := p.curloc.Props[key]; dup {
			p.errorf("location key defined twice in %s: %s", p.curloc.Key, key)
		} else {
			p.curloc.PropList = append(p.curloc.PropList, key)
		}
		p.curloc.Props[key] = propval
	}
	return true
}

func (p *parser) parseDirective(key, val string) {
	p.resetProp()
	switch {
	case key == "$wid":
		p.def.WID = worlddb.WorldID(val)
	case key == "$name":
		p.def.Name = val
	case key == "$creator":
		p.def.Creator = val
	case key == "$copyable":
		low := strings.ToLower(val)
		p.def.Copyable = !(len(low) > 0 && (low[0] == '0' || low[0] == 'n' || low[0] == 'f'))
	case key == "$instancing":
		switch worlddb.Instancing(val) {
		case worlddb.InstancingStandard, worlddb.InstancingSolo, worlddb.InstancingShared:
			p.def.Instancing = worlddb.Instancing(val)
		default:
			p.errorf("$instancing value must be shared, solo, or standard")
		}
	case strings.HasPrefix(key, "$player."):
		name := strings.TrimSpace(key[len("$player."):])
		if !isIdentifier(name) {
			p.errorf("player property key is not valid: %s", name)
		}
		if _, dup := p.def.PlayerProps[name]; dup {
			p.errorf("player key defined twice: %s", name)
		} else {
			p.def.PlayerPropList = append(p.def.PlayerPropList, name)
		}
		p.def.PlayerProps[name] = p.parseValue(val)
		p.curprop = name
		p.curPlayer = true
		p.curBase = -1
	default:
		p.errorf("unknown $key: %s", key)
	}
}

// curProps returns the property map the current property lives in.
func (p *parser) curProps() map[string]any {
	if p.curPlayer {
		return p.def.PlayerProps
	}
	if p.curloc != nil {
		return p.curloc.Props
	}
	return p.def.Props
}

func (p *parser) appendContinuation(ln string, indent int) {
	props := p.curProps()
	key := p.curprop

	val, ok := props[key]
	if !ok {
		// First line of an implicit desc after a *location header.
		props[key] = &worlddb.Text{Text: ln}
		p.notePropKey(key)
		return
	}
	if val == nil {
		props[key] = &worlddb.Text{Text: ln}
		return
	}

	switch v := val.(type) {
	case string:
		props[key] = v + "\n\n" + ln
	case *worlddb.Code:
		v.Text = p.appendIndented(v.Text, ln, indent)
	case *worlddb.GenText:
		v.Text = p.appendIndented(v.Text, ln, indent)
	default:
		if strings.HasPrefix(ln, "-") {
			p.appendSubkey(val, ln)
			return
		}
		switch v := val.(type) {
		case *worlddb.Text:
			v.Text += "\n\n" + ln
		case *worlddb.Event:
			v.Text += "\n\n" + ln
		case *worlddb.Panic:
			v.Text += "\n\n" + ln
		case *worlddb.SelfDesc:
			v.Text += "\n\n" + ln
		default:
			p.errorf("cannot append to property %s", key)
		}
	}
}

func (p *parser) notePropKey(key string) {
	switch {
	case p.curPlayer:
		p.def.PlayerPropList = append(p.def.PlayerPropList, key)
	case p.curloc != nil:
		p.curloc.PropList = append(p.curloc.PropList, key)
	default:
		p.def.PropList = append(p.def.PropList, key)
	}
}

// appendIndented extends a code or gentext body, preserving indentation
// relative to the first continuation line.
func (p *parser) appendIndented(text, ln string, indent int) string {
	if p.curBase < 0 {
		p.curBase = indent
	}
	rel := indent - p.curBase
	if rel < 0 {
		rel = 0
	}
	pad := strings.Repeat("  ", rel)
	if strings.TrimSpace(text) == "" {
		return pad + ln
	}
	return text + "\n" + pad + ln
}

// appendSubkey handles a "- subkey: value" continuation line.
func (p *parser) appendSubkey(val any, ln string) {
	subkey, subval, ok := strings.Cut(ln[1:], ":")
	if !ok {
		p.errorf("continuation - line must contain a colon")
		return
	}
	subkey = strings.TrimSpace(subkey)
	subval = strings.TrimSpace(subval)

	badkey := func() {
		p.errorf("property %s does not accept subkey: %s", p.curprop, subkey)
	}

	switch v := val.(type) {
	case *PortListDef:
		switch subkey {
		case "portal":
			fields := strings.Split(subval, ",")
			if len(fields) != 4 {
				p.errorf("portal property must have four fields")
				return
			}
			for i := range fields {
				fields[i] = strings.TrimSpace(fields[i])
			}
			v.Portals = append(v.Portals, PortalDef{
				World:   fields[0],
				Creator: fields[1],
				Scope:   fields[2],
				LocKey:  markup.Slug(fields[3]),
			})
		case "text":
			v.Text = subval
		case "readaccess":
			if lev, ok := worlddb.AccessLevelNamed(subval); ok {
				v.ReadAccess = lev
			} else {
				p.errorf("unknown access level: %s", subval)
			}
		case "editaccess":
			if lev, ok := worlddb.AccessLevelNamed(subval); ok {
				v.EditAccess = lev
			} else {
				p.errorf("unknown access level: %s", subval)
			}
		default:
			badkey()
		}
	case *worlddb.Event:
		if subkey == "otext" {
			v.OText = subval
		} else {
			badkey()
		}
	case *worlddb.Panic:
		if subkey == "otext" {
			v.OText = subval
		} else {
			badkey()
		}
	case *worlddb.Move:
		switch subkey {
		case "text":
			v.Text = subval
		case "oleave":
			v.OLeave = subval
		case "oarrive":
			v.OArrive = subval
		default:
			badkey()
		}
	case *worlddb.EditStr:
		switch subkey {
		case "label":
			v.Label = subval
		case "text":
			v.Text = subval
		case "otext":
			v.OText = subval
		case "editaccess":
			if lev, ok := worlddb.AccessLevelNamed(subval); ok {
				v.EditAccess = lev
			} else {
				p.errorf("unknown access level: %s", subval)
			}
		default:
			badkey()
		}
	default:
		p.errorf("property %s does not accept subkeys", p.curprop)
	}
}

// parseValue parses the value side of a "key: value" line: a *special
// form, a literal, or failing those a bare text record.
func (p *parser) parseValue(val string) any {
	if strings.HasPrefix(val, "*") {
		kind, rest, _ := strings.Cut(val[1:], " ")
		rest = strings.TrimSpace(rest)
		if rest == "" && kind != "code" && kind != "gentext" {
			p.errorf("*%s must be followed by a value", kind)
			return nil
		}
		switch kind {
		case "portlist":
			plistkey, flags, _ := strings.Cut(rest, " ")
			pl := &PortListDef{
				Key:        plistkey,
				ReadAccess: worlddb.AccVisitor,
				EditAccess: worlddb.AccMember,
			}
			for _, flag := range strings.Fields(flags) {
				if flag == "single" {
					pl.Single = true
				} else {
					p.errorf("unknown portlist flag: %s", flag)
				}
			}
			return pl
		case "move":
			return &worlddb.Move{Loc: markup.Slug(rest)}
		case "event":
			return &worlddb.Event{Text: rest}
		case "panic":
			return &worlddb.Panic{Text: rest}
		case "text":
			return &worlddb.Text{Text: rest}
		case "gentext":
			return &worlddb.GenText{Text: rest}
		case "code":
			return &worlddb.Code{Text: rest}
		case "selfdesc":
			return &worlddb.SelfDesc{Text: rest}
		case "editstr":
			return &worlddb.EditStr{Key: rest, EditAccess: worlddb.AccMember}
		default:
			p.errorf("unknown special property type: *%s", kind)
			return nil
		}
	}

	if lit, ok := parseLiteral(val); ok {
		return lit
	}
	return &worlddb.Text{Text: val}
}

// parseLiteral recognizes scalar and list literals: None, True, False,
// integers, floats, quoted strings, and bracketed lists of those.
func parseLiteral(s string) (any, bool) {
	switch s {
	case "None":
		return nil, true
	case "True":
		return true, true
	case "False":
		return false, true
	case "":
		return nil, false
	}

	if ch := s[0]; ch == '-' || ch == '+' || ch == '.' || (ch >= '0' && ch <= '9') {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return nil, false
	}

	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return unquote(s)
	}

	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}, true
		}
		parts, ok := splitTop(inner)
		if !ok {
			return nil, false
		}
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			lit, ok := parseLiteral(strings.TrimSpace(part))
			if !ok {
				return nil, false
			}
			out = append(out, lit)
		}
		return out, true
	}

	return nil, false
}

// unquote strips a matched pair of single or double quotes, resolving
// backslash escapes.
func unquote(s string) (string, bool) {
	q := s[0]
	var sb strings.Builder
	for i := 1; i < len(s)-1; i++ {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s)-1:
			i++
			switch s[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '\'', '"':
				sb.WriteByte(s[i])
			default:
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
		case ch == q:
			return "", false
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), true
}

// splitTop splits on commas at bracket depth zero, outside quotes.
func splitTop(s string) ([]string, bool) {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
			if depth < 0 {
				return nil, false
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 || quote != 0 {
		return nil, false
	}
	return append(parts, s[start:]), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
		case ch >= '0' && ch <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
