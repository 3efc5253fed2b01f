package wake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// Policy says whether an operation may pulse the panel's BLE wake line first.
type Policy string

const (
	PolicyAuto  Policy = "auto"
	PolicyForce Policy = "force"
	PolicyNever Policy = "never"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyAuto, PolicyForce, PolicyNever:
		return Policy(raw), nil
	}
	return "", fmt.Errorf("unknown wake policy %q", raw)
}

// Result reports what the wake attempt did. The radio pulse carries no
// acknowledgement from the panel itself, so "woke" means the whole BLE
// exchange went through, not that the panel is provably listening.
type Result string

const (
	ResultWoke          Result = "WOKE"
	ResultUnconfirmed   Result = "WOKE_UNCONFIRMED"
	ResultSkipped       Result = "SKIPPED_BY_POLICY"
	ResultNotConfigured Result = "NOT_CONFIGURED"
)

// Attempted reports whether the radio was actually touched.
func (r Result) Attempted() bool {
	return r == ResultWoke || r == ResultUnconfirmed
}

// Wake characteristic candidates across firmware generations, tried in order.
var wakeCharacteristics = []string{
	"0000ff01-0000-1000-8000-00805f9b34fb",
	"0000ffe1-0000-1000-8000-00805f9b34fb",
}

// The wake line wants a short assert/deassert pulse.
var (
	wakeAssert   = []byte{0x57, 0x01}
	wakeDeassert = []byte{0x57, 0x00}
)

type gattLink interface {
	Connect(ctx context.Context, mac string) (gattSession, error)
}

type gattSession interface {
	WriteCharacteristic(ctx context.Context, uuid string, payload []byte, acknowledged bool) error
	Close(ctx context.Context) error
}

// Timing bounds each BLE step so a dead radio cannot stall a refresh for long.
type Timing struct {
	Connect    time.Duration
	Write      time.Duration
	PulseGap   time.Duration
	Disconnect time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Connect:    20 * time.Second,
		Write:      2 * time.Second,
		PulseGap:   100 * time.Millisecond,
		Disconnect: 5 * time.Second,
	}
}

func (t Timing) normalize() Timing {
	defaults := DefaultTiming()
	if t.Connect <= 0 {
		t.Connect = defaults.Connect
	}
	if t.Write <= 0 {
		t.Write = defaults.Write
	}
	if t.PulseGap <= 0 {
		t.PulseGap = defaults.PulseGap
	}
	if t.Disconnect <= 0 {
		t.Disconnect = defaults.Disconnect
	}
	return t
}

// Waker pulses the panel's BLE wake characteristic so its HTTP server comes
// up before a network call. Every failure downgrades to ResultUnconfirmed;
// whether the panel actually woke is decided later by whoever retries HTTP.
type Waker struct {
	link   gattLink
	logger *slog.Logger
	timing Timing
}

func New(logger *slog.Logger, adapter string) *Waker {
	return &Waker{
		link:   newBlueZLink(adapter),
		logger: logger,
		timing: DefaultTiming(),
	}
}

// MaybeWake applies policy and, when allowed, runs one wake attempt.
func (w *Waker) MaybeWake(ctx context.Context, cfg model.CanvasConfig, policy Policy) Result {
	mac := model.NormalizeMAC(cfg.BLEMAC)

	switch policy {
	case PolicyNever:
		return ResultSkipped
	case PolicyForce:
		if mac == "" {
			return ResultNotConfigured
		}
	case PolicyAuto:
		if mac == "" {
			return ResultNotConfigured
		}
		if !cfg.BLEAutoWake {
			return ResultSkipped
		}
	default:
		w.logger.Warn("unknown wake policy, not waking", "policy", string(policy))
		return ResultSkipped
	}

	if w.wake(ctx, mac) {
		w.logger.Debug("wake pulse delivered", "mac", mac)
		return ResultWoke
	}
	return ResultUnconfirmed
}

func (w *Waker) wake(ctx context.Context, mac string) bool {
	timing := w.timing.normalize()

	connectCtx, cancel := context.WithTimeout(ctx, timing.Connect)
	session, err := w.link.Connect(connectCtx, mac)
	cancel()
	if err != nil {
		w.logger.Debug("ble connect failed", "mac", mac, "error", err)
		return false
	}
	defer func() {
		// Disconnect even when the caller's context is already done, or the
		// panel's radio stays attached and drains its battery.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timing.Disconnect)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			w.logger.Debug("ble disconnect failed", "mac", mac, "error", err)
		}
	}()

	for _, uuid := range wakeCharacteristics {
		if err := w.pulse(ctx, session, uuid, timing); err != nil {
			w.logger.Debug("wake pulse failed", "mac", mac, "characteristic", uuid, "error", err)
			continue
		}
		return true
	}
	return false
}

func (w *Waker) pulse(ctx context.Context, session gattSession, uuid string, timing Timing) error {
	if err := w.write(ctx, session, uuid, wakeAssert, timing); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timing.PulseGap):
	}
	// Deassert is best effort; the assert edge is what wakes the panel.
	if err := w.write(ctx, session, uuid, wakeDeassert, timing); err != nil {
		w.logger.Debug("wake deassert failed", "characteristic", uuid, "error", err)
	}
	return nil
}

// write tries an acknowledged GATT write first and falls back to an
// unacknowledged one. Older firmware never acks the wake characteristic.
func (w *Waker) write(ctx context.Context, session gattSession, uuid string, payload []byte, timing Timing) error {
	writeCtx, cancel := context.WithTimeout(ctx, timing.Write)
	err := session.WriteCharacteristic(writeCtx, uuid, payload, true)
	cancel()
	if err == nil {
		return nil
	}
	w.logger.Debug("acknowledged write failed, retrying unacknowledged", "characteristic", uuid, "error", err)

	writeCtx, cancel = context.WithTimeout(ctx, timing.Write)
	defer cancel()
	return session.WriteCharacteristic(writeCtx, uuid, payload, false)
}
