package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewTeeCollapses(t *testing.T) {
	if h := newTee(nil, nil); h != slog.DiscardHandler {
		t.Error("expected the discard handler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTee(nil, inner, nil); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newTee(infoHandler, debugHandler))
	logger.Debug("debug only")

	if infoBuf.Len() != 0 {
		t.Error("info handler should not receive debug records")
	}
	if debugBuf.Len() == 0 {
		t.Error("debug handler should receive debug records")
	}

	logger.With(slog.String(FieldRunID, "r1")).Info("both")
	if !strings.Contains(infoBuf.String(), `"run_id":"r1"`) || !strings.Contains(debugBuf.String(), `"run_id":"r1"`) {
		t.Fatalf("attributes not copied to both sinks: %q / %q", infoBuf.String(), debugBuf.String())
	}
}

type brokenHandler struct{ slog.Handler }

var errSinkClosed = errors.New("sink closed")

func (brokenHandler) Handle(context.Context, slog.Record) error { return errSinkClosed }

func TestTeeKeepsWritingPastFailingSink(t *testing.T) {
	var buf bytes.Buffer
	good := slog.NewJSONHandler(&buf, nil)
	tee := newTee(brokenHandler{good}, good)

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "export complete", 0)
	record.AddAttrs(slog.Int("frames", 3))
	if err := tee.Handle(context.Background(), record); !errors.Is(err, errSinkClosed) {
		t.Fatalf("Handle error = %v", err)
	}
	if !strings.Contains(buf.String(), `"frames":3`) {
		t.Fatalf("second sink missed the record: %q", buf.String())
	}
	if _, ok := tee.WithAttrs([]slog.Attr{slog.String(FieldRunID, "r1")}).(teeHandler); !ok {
		t.Fatal("WithAttrs should keep the tee")
	}
}

func TestPrettyHandlerLiftsComponentAndController(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, level, false))

	logger = NewComponentLogger(logger, "export")
	logger.Info("export complete",
		String(FieldController, "Garage"),
		Int("frames", 1200),
		String(FieldDestination, "/media/sd card/show.fseq"),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO  export: export complete [Garage]") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if strings.Contains(line, "component=") || strings.Contains(line, "controller=") {
		t.Fatalf("lifted keys repeated in tail: %q", line)
	}
	if !strings.Contains(line, "frames=1200") {
		t.Fatalf("missing frames: %q", line)
	}
	if !strings.Contains(line, `destination="/media/sd card/show.fseq"`) {
		t.Fatalf("value with spaces not quoted: %q", line)
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false))
	logger.WithGroup("range").Info("selected", Int("offset", 40), Int("length", 60))
	if !strings.Contains(buf.String(), "range.offset=40 range.length=60") {
		t.Fatalf("group keys not prefixed: %q", buf.String())
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONHandler(&buf, new(slog.LevelVar), false))
	logger.Warn("frame failed", Error(errors.New("disk full")))

	out := buf.String()
	for _, want := range []string{`"ts":`, `"level":"warn"`, `"msg":"frame failed"`, `"error":"disk full"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

type kindError struct{}

func (kindError) Error() string     { return "boom" }
func (kindError) ErrorKind() string { return "frame_io" }

func TestErrorKindAttr(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), kindError{})
	if got := ErrorKind(wrapped).Value.String(); got != "frame_io" {
		t.Fatalf("ErrorKind = %q", got)
	}
	if got := ErrorKind(errors.New("plain")).Value.String(); got != "unknown" {
		t.Fatalf("ErrorKind plain = %q", got)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONHandler(&buf, new(slog.LevelVar), false))
	WarnWithContext(logger, "controller skipped", "controller_skipped", String(FieldImpact, "no export for this controller"))

	out := buf.String()
	if !strings.Contains(out, `"event_type":"controller_skipped"`) {
		t.Fatalf("missing event type: %q", out)
	}
	if !strings.Contains(out, `"impact":"no export for this controller"`) {
		t.Fatalf("caller impact overwritten: %q", out)
	}
	if !strings.Contains(out, `"error_hint":`) {
		t.Fatalf("missing default hint: %q", out)
	}
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newJSONHandler(&buf, new(slog.LevelVar), false))
	ErrorWithContext(logger, "export failed", "export_failed", String(FieldErrorHint, "check the card"))

	out := buf.String()
	if strings.Count(out, `"error_hint"`) != 1 || !strings.Contains(out, `"error_hint":"check the card"`) {
		t.Fatalf("hint = %q", out)
	}
	if !strings.Contains(out, `"event_type":"export_failed"`) {
		t.Fatalf("missing event type: %q", out)
	}
	if strings.Contains(out, `"impact"`) {
		t.Fatalf("errors carry no impact default: %q", out)
	}
}

func TestWithContextAddsRunAndController(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(newJSONHandler(&buf, new(slog.LevelVar), false))

	ctx := WithController(WithRunID(context.Background(), "run-7"), "Tree")
	WithContext(ctx, base).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-7"`) || !strings.Contains(out, `"controller":"Tree"`) {
		t.Fatalf("context fields missing: %q", out)
	}

	if WithContext(context.Background(), base) != base {
		t.Fatal("expected base logger when context carries no fields")
	}
	if _, ok := RunIDFromContext(WithRunID(context.Background(), "  ")); ok {
		t.Fatal("blank run id should not be stored")
	}
}
