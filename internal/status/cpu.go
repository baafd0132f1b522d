package status

import (
	"strconv"
	"strings"
)

// cpuMode is the block the CPU parser is currently filling.
type cpuMode int

const (
	cpuModeNone cpuMode = iota // no block open
	cpuModeFull                // inside "Full CPU:"
	cpuModeCore                // inside "Core <n>:"
)

// cpuKeys maps each per-block key to the CpuStat field it fills.
// Order matters only for readability; the keys share no prefixes.
var cpuKeys = []struct {
	key   string
	field func(*CpuStat) **uint64
}{
	{"User norm", func(s *CpuStat) **uint64 { return &s.UserNorm }},
	{"User nice", func(s *CpuStat) **uint64 { return &s.UserNice }},
	{"Kernel", func(s *CpuStat) **uint64 { return &s.Kernel }},
	{"Idle", func(s *CpuStat) **uint64 { return &s.Idle }},
	{"Iowait", func(s *CpuStat) **uint64 { return &s.Iowait }},
	{"Irq", func(s *CpuStat) **uint64 { return &s.Irq }},
	{"Soft irq", func(s *CpuStat) **uint64 { return &s.SoftIrq }},
}

// cpuParseState carries the section state machine across lines.
type cpuParseState struct {
	info  CpuInfo
	full  *CpuStat
	core  *CoreStat
	cores []CoreStat
	mode  cpuMode
}

// closeCore pushes the open core block, if any, onto the core list.
func (s *cpuParseState) closeCore() {
	if s.core != nil {
		s.cores = append(s.cores, *s.core)
		s.core = nil
	}
}

// closeBlock ends whichever block is open.
func (s *cpuParseState) closeBlock() {
	s.closeCore()
	s.mode = cpuModeNone
}

// current returns the stat block key lines should fill, or nil.
func (s *cpuParseState) current() *CpuStat {
	switch s.mode {
	case cpuModeFull:
		return s.full
	case cpuModeCore:
		if s.core != nil {
			return &s.core.CpuStat
		}
	}
	return nil
}

// ParseCPU parses the contents of the CPU file. source names the file in
// log messages.
//
// The file holds a "CPU temp:" line, one "Full CPU:" block and any number of
// "Core <n>:" blocks, each followed by key lines. Cores are returned in the
// order they appear.
func (p *Parser) ParseCPU(source, content string) CpuInfo {
	st := &cpuParseState{}

	p.eachLine(source, content, func(line string) {
		if value, ok := extractValue(line, "CPU temp"); ok {
			if milli, ok := p.parseFloat64(source, line, value); ok {
				celsius := milli / 1000.0
				st.info.TemperatureCelsius = &celsius
			}
			st.closeBlock()
			return
		}

		if strings.HasPrefix(line, "Full CPU:") {
			st.closeCore()
			if st.full == nil {
				st.full = &CpuStat{}
			}
			st.mode = cpuModeFull
			return
		}

		if strings.HasPrefix(line, "Core ") {
			st.closeBlock()
			p.openCore(st, source, line)
			return
		}

		stat := st.current()
		if stat == nil {
			p.log.Warn("%s: ignoring unrecognized line: %s", source, line)
			return
		}

		for _, k := range cpuKeys {
			value, ok := extractValue(line, k.key)
			if !ok {
				continue
			}
			if v, ok := p.parseUint64(source, line, value); ok {
				*k.field(stat) = v
			}
			return
		}

		if st.mode == cpuModeCore {
			p.log.Warn("%s: ignoring unrecognized line in Core %d section: %s", source, st.core.CoreID, line)
		} else {
			p.log.Warn("%s: ignoring unrecognized line in Full CPU section: %s", source, line)
		}
	})

	st.closeCore()

	if st.full != nil || len(st.cores) > 0 {
		st.info.Usage = &CpuUsage{Full: st.full}
		if len(st.cores) > 0 {
			st.info.Usage.Cores = st.cores
		}
	}

	return st.info
}

// openCore starts a new core block from a "Core <n>:" header. A header whose
// id does not parse leaves no block open.
func (p *Parser) openCore(st *cpuParseState, source, line string) {
	idStr, ok := strings.CutSuffix(strings.TrimPrefix(line, "Core "), ":")
	if !ok {
		p.log.Warn("%s: malformed Core header line: %q", source, line)
		return
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 32)
	if err != nil {
		p.log.Warn("%s: failed to parse core ID from %q", source, line)
		return
	}
	st.core = &CoreStat{CoreID: uint32(id)}
	st.mode = cpuModeCore
}
