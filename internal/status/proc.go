package status

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseProcesses parses the contents of the process file.
//
// Each record starts with a "Proc: <pid> <name>" header and runs until the
// next header or end of file. A record is kept only if its pid parsed; lines
// outside any record are logged and skipped.
func (p *Parser) ParseProcesses(source, content string) ProcessesInfo {
	out := ProcessesInfo{Processes: []ProcessInfo{}}
	var current *ProcessInfo

	flush := func() {
		if current == nil {
			return
		}
		if current.PID != nil {
			out.Processes = append(out.Processes, *current)
		} else {
			p.log.Warn("%s: discarding process block due to missing PID", source)
		}
		current = nil
	}

	p.eachLine(source, content, func(line string) {
		if strings.HasPrefix(line, "Proc:") {
			flush()
			current = p.openProcess(source, line)
			return
		}

		if current == nil {
			p.log.Warn("%s: ignoring line outside process block: %s", source, line)
			return
		}

		p.processLine(source, line, current)
	})

	flush()
	return out
}

// openProcess builds a record from a header line, or returns nil if the
// header is malformed or its pid does not parse.
func (p *Parser) openProcess(source, line string) *ProcessInfo {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "Proc:"))
	i := strings.IndexFunc(rest, unicode.IsSpace)
	if i < 0 {
		p.log.Warn("%s: malformed Proc line: %q", source, line)
		return nil
	}
	pidStr, name := rest[:i], strings.TrimSpace(rest[i:])

	pid, err := strconv.ParseUint(pidStr, 10, 32)
	if err != nil {
		p.log.Warn("%s: failed to parse PID from Proc line: %q", source, line)
		return nil
	}

	id := uint32(pid)
	return &ProcessInfo{PID: &id, Name: stringPtr(name)}
}

// processLine applies one key line to the open record.
func (p *Parser) processLine(source, line string, proc *ProcessInfo) {
	if strings.HasPrefix(line, "State:") {
		p.parseState(source, line, proc)
		return
	}

	// The producer writes "User: <uid> <name>"; the id is kept.
	if value, ok := extractValue(line, "User"); ok {
		proc.User = lastField(value)
		return
	}
	if value, ok := extractValue(line, "Group"); ok {
		proc.Group = lastField(value)
		return
	}

	if value, ok := extractValue(line, "Memory"); ok {
		rss, virt, found := strings.Cut(value, "/")
		if !found {
			p.log.Warn("%s: malformed Memory line (expected 'rss/virt'): %q", source, line)
			return
		}
		proc.MemoryRSS, _ = p.parseUint64(source, line, rss)
		proc.MemoryVirt, _ = p.parseUint64(source, line, virt)
		return
	}

	if value, ok := extractValue(line, "Swap"); ok {
		proc.Swap, _ = p.parseUint64(source, line, value)
		return
	}
	if value, ok := extractValue(line, "Threads"); ok {
		proc.Threads, _ = p.parseUint32(source, line, value)
		return
	}
	if value, ok := extractValue(line, "Utime"); ok {
		proc.Utime, _ = p.parseUint64(source, line, value)
		return
	}

	if strings.HasPrefix(line, "Max_cpus:") {
		p.log.Debug("%s: ignoring Max_cpus line: %s", source, line)
		return
	}

	p.log.Warn("%s: ignoring unrecognized line within process block: %s", source, line)
}

// parseState splits "S (sleeping)" into code and description. A value with
// no parenthesis is all code, so a bare "State:" stores an empty code.
func (p *Parser) parseState(source, line string, proc *ProcessInfo) {
	_, value, _ := strings.Cut(line, ":")
	value = strings.TrimSpace(value)

	code, desc, found := strings.Cut(value, "(")
	if !found {
		proc.StateCode = stringPtr(value)
		proc.StateDescription = nil
		return
	}

	proc.StateCode = stringPtr(strings.TrimSpace(code))
	proc.StateDescription = stringPtr(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(desc), ")")))
}

// lastField returns the last whitespace-delimited token of s, or nil.
func lastField(s string) *string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return stringPtr(fields[len(fields)-1])
}
