package channel

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"taskpilot/internal/notify"
	logx "taskpilot/pkg/logx"
)

const (
	notificationsName  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications.Notify"
)

type DesktopConfig struct {
	Enabled       bool
	AppName       string
	ExpireTimeout time.Duration
	// Owners restricts desktop popups to these owners. Empty means everyone.
	Owners []string
}

// popper shows a desktop notification. The D-Bus implementation is the only
// production one; tests swap in a fake.
type popper interface {
	Ready(ctx context.Context) bool
	Popup(ctx context.Context, appName, summary, body string, expire time.Duration) error
}

// Desktop shows the plain-text rendering through the freedesktop
// notification service on the session bus.
type Desktop struct {
	mu  sync.Mutex
	cfg DesktopConfig

	pop popper
	log logx.Logger
}

func NewDesktop(cfg DesktopConfig, log logx.Logger) *Desktop {
	return newDesktop(cfg, &dbusPopper{}, log)
}

func newDesktop(cfg DesktopConfig, pop popper, log logx.Logger) *Desktop {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Desktop{pop: pop, log: log}
	d.Apply(cfg)
	return d
}

func (d *Desktop) Apply(cfg DesktopConfig) {
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "TaskPilot"
	}
	if cfg.ExpireTimeout < 0 {
		cfg.ExpireTimeout = 0
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Desktop) Name() string { return NameDesktop }

// Available is true when the channel is enabled for the owner and a
// notification server is running. Unavailability is not an error.
func (d *Desktop) Available(ctx context.Context, owner string) (ok bool) {
	defer guard(d.log, NameDesktop, &ok)
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()
	if !cfg.Enabled {
		return false
	}
	if len(cfg.Owners) > 0 && !slices.Contains(cfg.Owners, owner) {
		return false
	}
	return d.pop.Ready(ctx)
}

func (d *Desktop) Send(ctx context.Context, owner string, msg notify.Message) (ok bool) {
	defer guard(d.log, NameDesktop, &ok)
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	if err := d.pop.Popup(ctx, cfg.AppName, msg.Title, msg.Text, cfg.ExpireTimeout); err != nil {
		d.log.Warn("desktop notification failed", logx.String("owner", owner), logx.Err(err))
		return false
	}
	return true
}

// dbusPopper talks to org.freedesktop.Notifications. The session bus
// connection is shared process-wide by godbus and is opened lazily.
type dbusPopper struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (p *dbusPopper) bus() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && p.conn.Connected() {
		return p.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

func (p *dbusPopper) Ready(ctx context.Context) bool {
	conn, err := p.bus()
	if err != nil {
		return false
	}
	var has bool
	call := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, notificationsName)
	if err := call.Store(&has); err != nil {
		return false
	}
	return has
}

func (p *dbusPopper) Popup(ctx context.Context, appName, summary, body string, expire time.Duration) error {
	conn, err := p.bus()
	if err != nil {
		return err
	}
	if conn == nil {
		return errors.New("session bus unavailable")
	}
	expireMS := int32(-1)
	if expire > 0 {
		expireMS = int32(expire / time.Millisecond)
	}
	obj := conn.Object(notificationsName, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsIface, 0,
		appName, uint32(0), "", summary, body, []string{}, map[string]dbus.Variant{}, expireMS)
	return call.Err
}
