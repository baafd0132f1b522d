package status

// ParseRAM parses the contents of the RAM file.
//
// Only "Ram total", "Ram free" and "Ram available" are recognized. Other
// lines are logged at debug level, quieter than the CPU and process parsers.
func (p *Parser) ParseRAM(source, content string) MemoryInfo {
	var mem MemoryInfo

	p.eachLine(source, content, func(line string) {
		var target **uint64
		var value string
		var ok bool

		if value, ok = extractValue(line, "Ram total"); ok {
			target = &mem.Total
		} else if value, ok = extractValue(line, "Ram free"); ok {
			target = &mem.Free
		} else if value, ok = extractValue(line, "Ram available"); ok {
			target = &mem.Available
		} else {
			p.log.Debug("%s: ignoring unrecognized line: %s", source, line)
			return
		}

		if v, ok := p.parseUint64(source, line, value); ok {
			*target = v
		}
	})

	return mem
}
