package tui

import (
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed prompt command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// uploadArgs parses "upload <file>" or "upload <page> <file>". A zero page
// means the next pending checkpoint.
func uploadArgs(args string) (page int, path string, err error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 1:
		return 0, fields[0], nil
	case 2:
		page, err = strconv.Atoi(fields[0])
		if err != nil || page <= 0 {
			return 0, "", fmt.Errorf("invalid page %q", fields[0])
		}
		return page, fields[1], nil
	default:
		return 0, "", fmt.Errorf("usage: upload [page] <file>")
	}
}
