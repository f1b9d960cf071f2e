package rxnorm

import "fmt"

// ParseError reports a source row with fewer fields than its table requires.
// Loading of the whole table is aborted.
type ParseError struct {
	Table    string
	Path     string
	Line     int
	Fields   int
	Required int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %s line %d: got %d fields, need at least %d", e.Table, e.Path, e.Line, e.Fields, e.Required)
}

// IOError reports a failure to write an output artifact
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ResolutionWarning records an NDC that could not be fully resolved.
// It is collected in the run summary, never returned as a failure.
type ResolutionWarning struct {
	Ndc    string
	Rxcui  string
	Reason string
}

func (w ResolutionWarning) Error() string {
	return fmt.Sprintf("ndc %s (rxcui %s): %s", w.Ndc, w.Rxcui, w.Reason)
}
