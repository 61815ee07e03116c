package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig describes one external MCP server entry in the servers file.
// Command-based entries use stdio transport, URL-based entries use
// streamable HTTP.
type ServerConfig struct {
	Command  string            `json:"command,omitempty"`
	Args     []string          `json:"args,omitempty"`
	URL      string            `json:"url,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Category string            `json:"category,omitempty"`
	Enabled  bool              `json:"enabled"`
}

// ServersFile is the on-disk shape of the external servers configuration.
type ServersFile struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadServers reads the external MCP servers file. A missing file is not an
// error: the assistant runs fine with built-in tools only. The file may
// contain // and /* */ comments.
func LoadServers(path string) (*ServersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ServersFile{Servers: map[string]ServerConfig{}}, nil
		}
		return nil, fmt.Errorf("failed to read servers config: %w", err)
	}

	var file ServersFile
	if err := json.Unmarshal(stripJSONComments(data), &file); err != nil {
		return nil, fmt.Errorf("failed to parse servers config %s: %w", path, err)
	}
	if file.Servers == nil {
		file.Servers = map[string]ServerConfig{}
	}

	return &file, nil
}

// stripJSONComments removes // line comments and /* */ block comments so the
// servers file can be annotated by hand. String contents are left untouched.
func stripJSONComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++ // skip the closing '/'
		default:
			out = append(out, c)
		}
	}

	return out
}
