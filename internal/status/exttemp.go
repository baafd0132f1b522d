package status

// ParseExtTemp parses the external thermocouple file, a single
// "Temp: <celsius>" line. Other lines are logged at debug level.
func (p *Parser) ParseExtTemp(source, content string) ExternalTemperature {
	var ext ExternalTemperature

	p.eachLine(source, content, func(line string) {
		value, ok := extractValue(line, "Temp")
		if !ok {
			p.log.Debug("%s: ignoring unrecognized line: %s", source, line)
			return
		}
		if v, ok := p.parseFloat64(source, line, value); ok {
			ext.Temperature = &v
		}
	})

	return ext
}
