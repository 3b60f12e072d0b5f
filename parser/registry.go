package parser

import "fmt"

// Registry dispatches attachment parsing by file extension, used by
// the indexer to turn non-markdown collection files (PDFs, Office
// documents, plain text) into a flat body string the splitter can
// fragment like any other document.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a Registry with every built-in parser registered.
// Legacy binary formats (doc/xls/ppt) resolve to a stub that reports
// they are unsupported, since this pack carries no external
// conversion service for them.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	builtins := []Parser{&PDFParser{}, &DOCXParser{}, &XLSXParser{}, &PPTXParser{}, &TextParser{}, &LegacyParser{}}
	for _, p := range builtins {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
