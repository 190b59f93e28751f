package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/pkg/errors"

	"github.com/relabs-tech/ecompass/internal/orientation"
)

// DefaultTalker identifies a magnetic compass.
const DefaultTalker = "HC"

// HDGSentence formats a heading sentence with deviation and variation left
// empty, since the compass is uncalibrated.
func HDGSentence(talker string, heading float64) string {
	h := math.Round(heading*10) / 10
	if h >= 360 {
		h -= 360
	}
	body := fmt.Sprintf("%sHDG,%.1f,,,,", talker, h)
	return "$" + body + "*" + nmea.Checksum(body) + "\r\n"
}

// NMEAWriter writes one HDG sentence per reading, typically to a serial
// port.
type NMEAWriter struct {
	mu     sync.Mutex
	w      io.Writer
	talker string
}

// NewNMEAWriter writes to w. An empty talker uses DefaultTalker.
func NewNMEAWriter(w io.Writer, talker string) *NMEAWriter {
	if talker == "" {
		talker = DefaultTalker
	}
	return &NMEAWriter{w: w, talker: talker}
}

func (n *NMEAWriter) Publish(r orientation.Reading) error {
	s := HDGSentence(n.talker, r.Heading)
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := io.WriteString(n.w, s); err != nil {
		return errors.Wrap(err, "nmea: write")
	}
	return nil
}

// ReadHDG parses sentences from r and calls fn for each HDG. Lines that
// are not NMEA or fail to parse are skipped. It returns when r does.
func ReadHDG(r io.Reader, fn func(nmea.HDG)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "$") {
			if sentence, perr := nmea.Parse(line); perr == nil && sentence.DataType() == nmea.TypeHDG {
				fn(sentence.(nmea.HDG))
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "nmea: read")
		}
	}
}
