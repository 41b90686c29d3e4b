//go:build !no_automation

package automation

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Lamps       []string `json:"lamps,omitempty"` // informational: lamps the script drives
}

// Script is a Lua automation stored as <id>.lua. The first line carries the
// metadata as a JSON comment: -- {"name": "...", "enabled": true}
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}
