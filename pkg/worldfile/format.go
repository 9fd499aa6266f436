package worldfile

import (
	"fmt"
	"strings"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// FormatProp renders a parsed property value back in file syntax, for
// the display mode of the loader tool.
func FormatProp(val any) string {
	switch v := val.(type) {
	case *worlddb.Text:
		return strings.ReplaceAll(v.Text, "\n\n", "\n\t")
	case *worlddb.Code:
		return formatBlock("code", v.Text)
	case *worlddb.GenText:
		return formatBlock("gentext", v.Text)
	case *worlddb.Move:
		return "*move " + v.Loc
	case *worlddb.Event:
		res := "*event " + v.Text
		if v.OText != "" {
			res += "\n\t- otext: " + v.OText
		}
		return res
	case *worlddb.Panic:
		res := "*panic " + v.Text
		if v.OText != "" {
			res += "\n\t- otext: " + v.OText
		}
		return res
	case *worlddb.SelfDesc:
		return "*selfdesc " + v.Text
	case *worlddb.EditStr:
		res := "*editstr " + v.Key
		if v.Label != "" {
			res += "\n\t- label: " + v.Label
		}
		if v.Text != "" {
			res += "\n\t- text: " + v.Text
		}
		if v.OText != "" {
			res += "\n\t- otext: " + v.OText
		}
		return res
	case *PortListDef:
		res := "*portlist " + v.Key
		if v.Single {
			res += " single"
		}
		if v.Text != "" {
			res += "\n\t- text: " + v.Text
		}
		for _, quad := range v.Portals {
			res += fmt.Sprintf("\n\t- portal: %s, %s, %s, %s", quad.World, quad.Creator, quad.Scope, quad.LocKey)
		}
		return res
	default:
		return worlddb.Stringify(val)
	}
}

func formatBlock(kind, text string) string {
	if !strings.Contains(text, "\n") {
		return "*" + kind + " " + text
	}
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = "  " + ln
	}
	return "*" + kind + "\n" + strings.Join(lines, "\n")
}
