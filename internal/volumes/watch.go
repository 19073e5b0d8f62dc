package volumes

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"fseqgen/internal/logging"
)

// Event is a partition appearing or disappearing.
type Event struct {
	Action string
	Device string
	Label  string
	FSType string
}

// Handler receives matched events on the watcher goroutine.
type Handler func(ctx context.Context, event Event)

// Watcher listens for udev netlink events on block partitions.
type Watcher struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher that calls handler for partition add and
// remove events.
func NewWatcher(logger *slog.Logger, handler Handler) *Watcher {
	return &Watcher{
		logger:  logging.NewComponentLogger(logger, "volume-watch"),
		handler: handler,
	}
}

// Start connects to the udev netlink socket and begins delivering events.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "netlink connect failed; SD card insertions will not be reported", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run on a host with udev and permission to open netlink sockets"),
			logging.String(logging.FieldImpact, "use `fseqgen volumes` to list cards manually"),
		)
		return err
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, conn, w.quit, w.done)

	w.logger.Info("volume watcher started", logging.String(logging.FieldEventType, "volume_watch_started"))
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	done := w.done
	w.quit = nil
	w.running = false
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	w.logger.Info("volume watcher stopped", logging.String(logging.FieldEventType, "volume_watch_stopped"))
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "an insertion may have been missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=block, DEVTYPE=partition, ACTION=add|remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	event := Event{
		Action: string(uevent.Action),
		Device: deviceName(uevent),
		Label:  uevent.Env["ID_FS_LABEL"],
		FSType: uevent.Env["ID_FS_TYPE"],
	}
	if event.Device == "" {
		w.logger.Debug("ignoring event without device name",
			logging.String("action", event.Action),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	w.logger.Debug("partition event",
		logging.String(logging.FieldEventType, "volume_event"),
		logging.String("action", event.Action),
		logging.String("device", event.Device),
		logging.String("label", event.Label),
	)
	if w.handler != nil {
		w.handler(ctx, event)
	}
}

// deviceName gets the device path from a uevent.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	return "/dev/" + parts[len(parts)-1]
}
