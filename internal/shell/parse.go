// Package shell implements the interactive command layer: the input
// grammar, the operation registry, and the runner that executes parsed
// command units.
package shell

import "strings"

// Command is one parsed operation invocation.
type Command struct {
	Name string
	Args []string
}

// Raw reconstructs the command for logging and scheduling.
func (c Command) Raw() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Unit is one execution step. A concurrent unit holds the commands of a
// contiguous "&" group and runs them simultaneously; a sequential unit
// holds exactly one command.
type Unit struct {
	Commands   []Command
	Concurrent bool
}

// Parse splits raw input into execution units.
//
// Input is split on newlines and semicolons. A command ending in "&"
// joins the pending concurrent group; a command without it first flushes
// that group as one unit, then runs by itself. A trailing group is
// flushed at the end, so "a&; b&; c; d&; e&" yields three units:
// {a b}, {c}, {d e}. Text after "#" is a comment.
func Parse(raw string) []Unit {
	var units []Unit
	var group []Command

	flush := func() {
		if len(group) > 0 {
			units = append(units, Unit{Commands: group, Concurrent: true})
			group = nil
		}
	}

	for _, piece := range splitStatements(raw) {
		background := strings.HasSuffix(piece, "&")
		piece = strings.TrimSpace(strings.TrimSuffix(piece, "&"))
		if piece == "" {
			continue
		}

		fields := strings.Fields(piece)
		cmd := Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}

		if background {
			group = append(group, cmd)
			continue
		}
		flush()
		units = append(units, Unit{Commands: []Command{cmd}})
	}

	flush()
	return units
}

// splitStatements strips comments and splits on statement separators.
func splitStatements(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out
}
