package at

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// Splitter is used for tokenizing SPWF04Sx module output. It uses the
// signature of bufio.SplitFunc so it can be directly used with bufio.Scanner,
// and it is also applied by hand to the driver's pending buffer.
//
// It splits the input by CRLF line endings only. A lone CR or LF is part of
// the line, which keeps HTTP bodies with bare newlines intact.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Indication is an asynchronous, unsolicited report from the module.
type Indication struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// ParseIndication recognises the two indication shapes emitted by the module:
//
//	+WIND:<code>:<description>
//	+<code>:<description>
//
// The description is everything after the separator that ends the code, so
// embedded colons are preserved. It reports false for lines that start with
// '+' and contain ':' but carry no integer code.
func ParseIndication(line string) (Indication, bool) {
	if !strings.HasPrefix(line, IndicationPrefix) {
		return Indication{}, false
	}
	tag, rest, ok := strings.Cut(line[len(IndicationPrefix):], IndicationSep)
	if !ok {
		return Indication{}, false
	}

	if code, err := strconv.Atoi(tag); err == nil {
		return Indication{Code: code, Description: rest}, true
	}

	num, desc, ok := strings.Cut(rest, IndicationSep)
	if !ok {
		return Indication{}, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return Indication{}, false
	}
	return Indication{Code: code, Description: desc}, true
}

// IsFinal reports whether the line terminates a command reply.
func IsFinal(line string) bool {
	return line == OK || strings.HasPrefix(line, ErrorPrefix)
}

// Classify identifies the nature of the module output
func Classify(line string) ResponseType {
	if IsFinal(line) {
		return TypeFinal
	}
	if _, ok := ParseIndication(line); ok {
		return TypeIndication
	}
	return TypeData
}
