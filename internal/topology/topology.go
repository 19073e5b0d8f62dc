// Package topology reads the xLights controller network description and
// derives which block of the show's channels each controller owns.
package topology

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"fseqgen/internal/logging"
)

// DefaultFileName is the topology document xLights keeps next to its renders.
const DefaultFileName = "xlights_networks.xml"

// ErrMissingRoot matches MissingRootError.
var ErrMissingRoot = errors.New("topology document has no Networks root")

// MissingRootError reports a document whose root element is not Networks.
type MissingRootError struct {
	Path string
	Root string
}

func (e *MissingRootError) Error() string {
	where := e.Path
	if where == "" {
		where = "topology document"
	}
	if e.Root == "" {
		return fmt.Sprintf("%s: no Networks node found", where)
	}
	return fmt.Sprintf("%s: no Networks node found (root is %q)", where, e.Root)
}

func (e *MissingRootError) Is(target error) bool { return target == ErrMissingRoot }

func (e *MissingRootError) ErrorKind() string { return "missing_topology_root" }

// Controller is one hardware unit and the contiguous, 1-based channel block it
// drives.
type Controller struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	StartChannel uint64 `json:"start_channel"`
	ChannelCount uint64 `json:"channel_count"`
}

// EndChannel is the last channel the controller owns.
func (c Controller) EndChannel() uint64 {
	if c.ChannelCount == 0 {
		return c.StartChannel
	}
	return c.StartChannel + c.ChannelCount - 1
}

func (c Controller) String() string {
	if c.Address == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Address)
}

type document struct {
	XMLName     xml.Name
	Controllers []controllerNode `xml:"Controller"`
}

type controllerNode struct {
	Name     string        `xml:"Name,attr"`
	IP       string        `xml:"IP,attr"`
	Networks []networkNode `xml:"network"`
}

type networkNode struct {
	MaxChannels string `xml:"MaxChannels,attr"`
}

// Load opens and parses the topology document at path.
func Load(path string, logger *slog.Logger) ([]Controller, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology %s: %w", path, err)
	}
	defer file.Close()

	if logger == nil {
		logger = logging.NewNop()
	}
	controllers, err := Parse(file, logger.With(logging.String("path", path)))
	if err != nil {
		var missing *MissingRootError
		if errors.As(err, &missing) {
			missing.Path = path
			return nil, missing
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return controllers, nil
}

// Parse reads a topology document. Controllers are returned in document
// order; those without channels are skipped but still take part in the
// running start channel, which begins at 1.
func Parse(r io.Reader, logger *slog.Logger) ([]Controller, error) {
	logger = logging.NewComponentLogger(logger, "topology")

	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MissingRootError{}
		}
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if doc.XMLName.Local != "Networks" {
		return nil, &MissingRootError{Root: doc.XMLName.Local}
	}

	controllers := make([]Controller, 0, len(doc.Controllers))
	cursor := uint64(1)
	for _, node := range doc.Controllers {
		var total uint64
		for _, network := range node.Networks {
			total += channelCapacity(network.MaxChannels)
		}
		if total == 0 {
			logging.WarnWithContext(logger, "controller has no channels; skipping", "controller_skipped",
				logging.String(logging.FieldController, node.Name),
				logging.String("address", node.IP),
				logging.String(logging.FieldImpact, "controller is not offered for export"),
				logging.String(logging.FieldErrorHint, "set MaxChannels on the controller's outputs in xLights"),
			)
			continue
		}
		controller := Controller{
			Name:         strings.TrimSpace(node.Name),
			Address:      strings.TrimSpace(node.IP),
			StartChannel: cursor,
			ChannelCount: total,
		}
		logger.Info("controller found",
			logging.String(logging.FieldController, controller.Name),
			logging.String("address", controller.Address),
			logging.Uint64("start_channel", controller.StartChannel),
			logging.Uint64("channels", controller.ChannelCount),
		)
		controllers = append(controllers, controller)
		cursor += total
	}
	return controllers, nil
}

// channelCapacity reads MaxChannels the way xLights does: leading
// whitespace is skipped, then an optional sign and a decimal or 0x hex
// prefix is parsed up to the first other character. Values saturate at
// the 32-bit limit. Negative values and values without digits count as zero.
func channelCapacity(value string) uint64 {
	s := strings.TrimLeft(value, " \t\r\n")
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}
	base := uint64(10)
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	var n uint64
	for _, c := range []byte(s) {
		d, ok := digitValue(c, base)
		if !ok {
			break
		}
		n = min(n*base+d, math.MaxInt32+1)
	}
	if negative {
		return 0
	}
	return min(n, math.MaxInt32)
}

func digitValue(c byte, base uint64) (uint64, bool) {
	var d uint64
	switch {
	case c >= '0' && c <= '9':
		d = uint64(c - '0')
	case c >= 'a' && c <= 'f':
		d = uint64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		d = uint64(c-'A') + 10
	default:
		return 0, false
	}
	return d, d < base
}

// Find returns the controller with the given name, ignoring case.
func Find(controllers []Controller, name string) (Controller, bool) {
	name = strings.TrimSpace(name)
	for _, c := range controllers {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Controller{}, false
}

// TotalChannels is the width a source sequence needs to cover every controller.
func TotalChannels(controllers []Controller) uint64 {
	var end uint64
	for _, c := range controllers {
		if e := c.StartChannel + c.ChannelCount - 1; e > end {
			end = e
		}
	}
	return end
}
