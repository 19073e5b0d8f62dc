package topology_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fseqgen/internal/topology"
)

const networks = `<?xml version="1.0" encoding="UTF-8"?>
<Networks computer="show-pc">
  <Controller Name="Garage" IP="192.168.1.50" Protocol="E131">
    <network NetworkType="E131" MaxChannels="510"/>
    <network NetworkType="E131" MaxChannels="510"/>
  </Controller>
  <Controller Name="Spare" IP="192.168.1.60">
  </Controller>
  <Controller Name="Tree" IP="192.168.1.51">
    <network MaxChannels="300"/>
  </Controller>
  <Controller Name="Broken" IP="192.168.1.52">
    <network MaxChannels="lots"/>
    <network MaxChannels="-5"/>
  </Controller>
  <Controller Name="Porch" IP="192.168.1.53">
    <network MaxChannels="90"/>
  </Controller>
</Networks>`

func TestParseDerivesStartChannels(t *testing.T) {
	controllers, err := topology.Parse(strings.NewReader(networks), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []topology.Controller{
		{Name: "Garage", Address: "192.168.1.50", StartChannel: 1, ChannelCount: 1020},
		{Name: "Tree", Address: "192.168.1.51", StartChannel: 1021, ChannelCount: 300},
		{Name: "Porch", Address: "192.168.1.53", StartChannel: 1321, ChannelCount: 90},
	}
	if len(controllers) != len(want) {
		t.Fatalf("got %d controllers, want %d: %+v", len(controllers), len(want), controllers)
	}
	for i := range want {
		if controllers[i] != want[i] {
			t.Fatalf("controller %d = %+v, want %+v", i, controllers[i], want[i])
		}
	}
	if got := topology.TotalChannels(controllers); got != 1410 {
		t.Fatalf("TotalChannels = %d", got)
	}
	if end := controllers[1].EndChannel(); end != 1320 {
		t.Fatalf("Tree end channel = %d", end)
	}
}

func TestParseStartChannelIsOnePlusPrefixSum(t *testing.T) {
	counts := []int{0, 7, 0, 0, 12, 1, 0, 40}
	var b strings.Builder
	b.WriteString("<Networks>")
	for i, c := range counts {
		fmt.Fprintf(&b, `<Controller Name="c%d" IP="10.0.0.%d">`, i, i+1)
		if c > 0 {
			fmt.Fprintf(&b, `<network MaxChannels="%d"/>`, c)
		}
		b.WriteString("</Controller>")
	}
	b.WriteString("</Networks>")

	controllers, err := topology.Parse(strings.NewReader(b.String()), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	idx := 0
	sum := uint64(0)
	for _, c := range counts {
		if c == 0 {
			continue
		}
		got := controllers[idx]
		if got.StartChannel != 1+sum || got.ChannelCount != uint64(c) {
			t.Fatalf("controller %d = %+v, want start %d count %d", idx, got, 1+sum, c)
		}
		sum += uint64(c)
		idx++
	}
	if idx != len(controllers) {
		t.Fatalf("unexpected extra controllers: %+v", controllers[idx:])
	}
}

func TestParseReadsMaxChannelsPrefix(t *testing.T) {
	doc := `<Networks>
  <Controller Name="Loose" IP="10.0.0.1">
    <network MaxChannels=" 512 "/>
    <network MaxChannels="512abc"/>
    <network MaxChannels="0x10"/>
    <network MaxChannels="+3"/>
  </Controller>
  <Controller Name="Huge" IP="10.0.0.2">
    <network MaxChannels="99999999999"/>
  </Controller>
  <Controller Name="Empty" IP="10.0.0.3">
    <network MaxChannels="x512"/>
    <network MaxChannels="-0x10"/>
  </Controller>
</Networks>`
	controllers, err := topology.Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(controllers) != 2 {
		t.Fatalf("got %d controllers: %+v", len(controllers), controllers)
	}
	if c := controllers[0]; c.ChannelCount != 512+512+16+3 {
		t.Fatalf("Loose channels = %d", c.ChannelCount)
	}
	if c := controllers[1]; c.StartChannel != 1044 || c.ChannelCount != math.MaxInt32 {
		t.Fatalf("Huge = %+v", c)
	}
}

func TestParseMissingRoot(t *testing.T) {
	for name, doc := range map[string]string{
		"wrong root": `<Controllers><Controller Name="x"/></Controllers>`,
		"empty":      ``,
	} {
		t.Run(name, func(t *testing.T) {
			controllers, err := topology.Parse(strings.NewReader(doc), nil)
			if !errors.Is(err, topology.ErrMissingRoot) {
				t.Fatalf("error = %v, want ErrMissingRoot", err)
			}
			if controllers != nil {
				t.Fatalf("expected no controllers, got %+v", controllers)
			}
		})
	}
}

func TestParseMalformedXML(t *testing.T) {
	_, err := topology.Parse(strings.NewReader(`<Networks><Controller Name="x">`), nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if errors.Is(err, topology.ErrMissingRoot) {
		t.Fatalf("malformed xml reported as missing root: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, topology.DefaultFileName)
	if err := os.WriteFile(path, []byte(networks), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	controllers, err := topology.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(controllers) != 3 {
		t.Fatalf("controllers = %d", len(controllers))
	}

	bad := filepath.Join(dir, "bad.xml")
	if err := os.WriteFile(bad, []byte("<Other/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = topology.Load(bad, nil)
	var missing *topology.MissingRootError
	if !errors.As(err, &missing) || missing.Path != bad {
		t.Fatalf("Load(bad) = %v", err)
	}
	if missing.ErrorKind() != "missing_topology_root" {
		t.Fatalf("kind = %q", missing.ErrorKind())
	}

	if _, err := topology.Load(filepath.Join(dir, "absent.xml"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load(absent) = %v", err)
	}
}

func TestFind(t *testing.T) {
	controllers, err := topology.Parse(strings.NewReader(networks), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, ok := topology.Find(controllers, " tree ")
	if !ok || c.StartChannel != 1021 {
		t.Fatalf("Find(tree) = %+v, %v", c, ok)
	}
	if _, ok := topology.Find(controllers, "Spare"); ok {
		t.Fatal("zero-channel controller should not be found")
	}
}
