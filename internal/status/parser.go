package status

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
)

// maxLineBytes bounds a single line. Longer lines end the scan with a warning
// and the text parsed so far is kept.
const maxLineBytes = 1024 * 1024

// Files holds the paths of the snapshot files. An empty ExtTemp disables
// the external temperature section.
type Files struct {
	CPU     string
	RAM     string
	Proc    string
	ExtTemp string
}

// Parser converts snapshot file contents into their structured form.
//
// Content problems (unknown lines, unparseable numbers, malformed headers)
// are logged and skipped; they never fail a parse. The only error a Read*
// method returns is the file itself being unreadable.
type Parser struct {
	log logger.Logger
}

// NewParser creates a Parser that reports content problems to log.
// A nil log discards them.
func NewParser(log logger.Logger) *Parser {
	if log == nil {
		log = logger.Noop()
	}
	return &Parser{log: log}
}

// ReadStatus parses every configured file and assembles one snapshot.
// A file that cannot be read leaves its section at the all-absent default;
// the other files are still parsed.
func (p *Parser) ReadStatus(files Files) SystemStatus {
	p.log.Debug("Reading status files: CPU=%q, RAM=%q, Proc=%q, ExtTemp=%q",
		files.CPU, files.RAM, files.Proc, files.ExtTemp)

	st := NewSystemStatus()

	if cpu, err := p.ReadCPUFile(files.CPU); err != nil {
		p.log.Error("Failed to parse CPU file %q: %v", files.CPU, err)
	} else {
		st.CPU = cpu
	}

	if mem, err := p.ReadRAMFile(files.RAM); err != nil {
		p.log.Error("Failed to parse RAM file %q: %v", files.RAM, err)
	} else {
		st.Memory = mem
	}

	if procs, err := p.ReadProcFile(files.Proc); err != nil {
		p.log.Error("Failed to parse process file %q: %v", files.Proc, err)
	} else {
		st.Processes = procs
	}

	if files.ExtTemp != "" {
		if ext, err := p.ReadExtTempFile(files.ExtTemp); err != nil {
			p.log.Error("Failed to parse external temperature file %q: %v", files.ExtTemp, err)
		} else {
			st.ExternalTemperature = ext
		}
	}

	return st
}

// ReadCPUFile reads and parses the CPU file at path.
func (p *Parser) ReadCPUFile(path string) (CpuInfo, error) {
	content, err := readFile(path)
	if err != nil {
		return CpuInfo{}, err
	}
	return p.ParseCPU(path, content), nil
}

// ReadRAMFile reads and parses the RAM file at path.
func (p *Parser) ReadRAMFile(path string) (MemoryInfo, error) {
	content, err := readFile(path)
	if err != nil {
		return MemoryInfo{}, err
	}
	return p.ParseRAM(path, content), nil
}

// ReadProcFile reads and parses the process file at path.
func (p *Parser) ReadProcFile(path string) (ProcessesInfo, error) {
	content, err := readFile(path)
	if err != nil {
		return ProcessesInfo{Processes: []ProcessInfo{}}, err
	}
	return p.ParseProcesses(path, content), nil
}

// ReadExtTempFile reads and parses the external temperature file at path.
func (p *Parser) ReadExtTempFile(path string) (ExternalTemperature, error) {
	content, err := readFile(path)
	if err != nil {
		return ExternalTemperature{}, err
	}
	return p.ParseExtTemp(path, content), nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.FileUnreadable(path, err)
	}
	return string(data), nil
}

// eachLine calls fn for every non-blank line of content, trimmed.
func (p *Parser) eachLine(source, content string, fn func(line string)) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("%s: stopped reading early: %v", source, err)
	}
}

// extractValue returns the first whitespace-delimited token after the first
// colon of a line that starts with keyPrefix. It reports false when the
// prefix does not match, there is no colon, or the token is empty.
func extractValue(line, keyPrefix string) (string, bool) {
	rest, ok := strings.CutPrefix(line, keyPrefix)
	if !ok {
		return "", false
	}
	_, after, ok := strings.Cut(rest, ":")
	if !ok {
		return "", false
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// parseUint64 parses value and logs a warning on failure.
func (p *Parser) parseUint64(source, line, value string) (*uint64, bool) {
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		p.log.Warn("%s: could not parse %q as unsigned integer (line: %q)", source, value, line)
		return nil, false
	}
	return &v, true
}

// parseUint32 parses value and logs a warning on failure.
func (p *Parser) parseUint32(source, line, value string) (*uint32, bool) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		p.log.Warn("%s: could not parse %q as unsigned integer (line: %q)", source, value, line)
		return nil, false
	}
	u := uint32(v)
	return &u, true
}

// parseFloat64 parses value and logs a warning on failure.
func (p *Parser) parseFloat64(source, line, value string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.log.Warn("%s: could not parse %q as number (line: %q)", source, value, line)
		return 0, false
	}
	return v, true
}

func stringPtr(s string) *string {
	return &s
}
