package agent

import (
	"bufio"
	"bytes"
	"io"
)

// DoneSentinel terminates the agent's event stream.
const DoneSentinel = "[DONE]"

// SSEReader incrementally parses a server-sent-event stream. Records are
// separated by a blank line; only `data:` fields matter here. The reader
// buffers across chunk boundaries so partial records never surface.
type SSEReader struct {
	reader *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData returns the next record's data payload. Lines other than data
// fields (event:, id:, retry:, comments) are skipped. Returns io.EOF at
// stream end; a record pending at EOF is returned first.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			dataLines = append(dataLines, bytes.TrimPrefix(rest, []byte(" ")))
		}
	}
}
