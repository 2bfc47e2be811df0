package sx1262

import (
	"errors"
	"fmt"
	"sync"
)

// State is the transceiver lifecycle state. Transitions happen exclusively
// inside Radio: callers observe them through State() and the event channel.
type State int

const (
	StateUninitialized State = iota
	StateStandby
	StateConfiguringTx
	StateTransmitting
	StateConfiguringRx
	StateReceiving
	StateFault
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateStandby:
		return "Standby"
	case StateConfiguringTx:
		return "ConfiguringTx"
	case StateTransmitting:
		return "Transmitting"
	case StateConfiguringRx:
		return "ConfiguringRx"
	case StateReceiving:
		return "Receiving"
	case StateFault:
		return "Fault"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects the post-event transition policy. The protocol mechanics are
// identical in every mode; only what happens after TxDone/RxDone differs.
type Mode int

const (
	// ModeReceiveOnly parks the radio in standby after each completed
	// reception or transmission; the application decides when to arm
	// again. Timeouts still re-arm the receiver within the retry budget.
	ModeReceiveOnly Mode = iota
	// ModeEcho retransmits each received payload and re-arms the
	// receiver once its own transmission completes.
	ModeEcho
	// ModeStrobeTx retransmits the last payload after every TxDone,
	// ignoring receptions.
	ModeStrobeTx
)

func (m Mode) String() string {
	switch m {
	case ModeReceiveOnly:
		return "ReceiveOnly"
	case ModeEcho:
		return "Echo"
	case ModeStrobeTx:
		return "StrobeTx"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// RxResult is one received packet. It is produced by the state machine
// after reading the buffer descriptor and packet memory, delivered once on
// the Rx channel, and not retained by the driver.
type RxResult struct {
	Payload     []byte
	Length      byte
	StartOffset byte
	RssiDBm     int
	SnrDB       int
}

// LogPrintf is the diagnostic hook. The default discards everything.
type LogPrintf func(format string, v ...interface{})

const (
	rxChanCap  = 4  // buffered received packets before dropping
	evChanCap  = 16 // buffered diagnostic events before dropping
	irqChanCap = 8  // pending IRQ readings between edge and dispatcher
)

// Radio is the transceiver state machine for one SX1262. Construct with
// New, bring the chip up with Init, then Start the dispatcher before arming
// TX or RX.
type Radio struct {
	dev  *Device
	cfg  Config
	mode Mode

	mu          sync.Mutex
	state       State
	faultReason error
	stages      configStage

	rxTimeoutTicks uint32
	retriesUsed    int
	errStreak      int
	lastTx         []byte

	irqCh  chan irqReading
	rxCh   chan RxResult
	evCh   chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	log LogPrintf
}

// New creates a Radio over the given transport. The configuration is
// validated here; the chip is untouched until Init.
func New(tr Transport, cfg Config, mode Mode) (*Radio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Radio{
		dev:   NewDevice(tr, cfg.BusyTimeout, cfg.BusyPoll),
		cfg:   cfg,
		mode:  mode,
		state: StateUninitialized,
		irqCh: make(chan irqReading, irqChanCap),
		rxCh:  make(chan RxResult, rxChanCap),
		evCh:  make(chan Event, evChanCap),
		log:   func(string, ...interface{}) {},
	}
	return r, nil
}

// SetLog installs a printf-style diagnostic hook. Call before Start.
func (r *Radio) SetLog(fn LogPrintf) {
	if fn != nil {
		r.log = fn
	}
}

// Device exposes the underlying command codec for host tools that need raw
// status or register access. Operational sequencing must go through Radio.
func (r *Radio) Device() *Device { return r.dev }

// State returns the current transceiver state.
func (r *Radio) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FaultReason returns the error that drove the radio into Fault, or nil.
func (r *Radio) FaultReason() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faultReason
}

// Rx is the channel of received packets. It has a small buffer; packets are
// dropped (and logged) if the consumer falls behind.
func (r *Radio) Rx() <-chan RxResult { return r.rxCh }

// Events is the diagnostic channel. Every decoded IRQ bit is surfaced here
// at least once, including errors the driver auto-recovers from.
func (r *Radio) Events() <-chan Event { return r.evCh }

// Init hard-resets the chip and applies the baseline configuration,
// transitioning Uninitialized to Standby.
func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

// Reset recovers from Fault (or any other state) by re-running the hard
// reset and baseline sequence. This is the only way out of Fault.
func (r *Radio) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

func (r *Radio) resetLocked() error {
	r.stages = 0
	if err := r.dev.HardReset(); err != nil {
		return err
	}
	if err := r.applyBaseline(); err != nil {
		return err
	}
	if err := r.applyBufferBase(); err != nil {
		return err
	}
	if err := r.dev.ClearIrqStatus(IrqAll); err != nil {
		return fmt.Errorf("clear irq: %w", err)
	}
	r.state = StateStandby
	r.faultReason = nil
	r.errStreak = 0
	r.retriesUsed = 0
	return nil
}

// Start launches the dispatcher goroutine that turns IRQ readings into
// state transitions. It must be running before TX or RX is armed.
func (r *Radio) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.dispatch(r.stopCh, r.doneCh)
}

// Close stops the dispatcher. The chip is left in standby best-effort.
func (r *Radio) Close() {
	r.mu.Lock()
	stop, done := r.stopCh, r.doneCh
	r.stopCh, r.doneCh = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	r.dev.SetStandby(StandbyRC)
}

// dispatch is the single state-owning task: it serialises all event
// handling, so IRQ readings are processed strictly in arrival order.
func (r *Radio) dispatch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case rd := <-r.irqCh:
			r.handleReading(rd)
		}
	}
}

// Transmit writes the payload into the TX partition, applies the per-mode
// configuration and arms the transmitter. It returns once the chip is
// transmitting; completion arrives as a TxDone event.
func (r *Radio) Transmit(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStandby:
	case StateUninitialized:
		return fmt.Errorf("transmit: %w: Init not called", ErrConfigSequence)
	case StateFault:
		return fmt.Errorf("transmit: %w: %v", ErrRadioFault, r.faultReason)
	default:
		return fmt.Errorf("transmit: radio busy in state %s", r.state)
	}
	return r.transmitLocked(payload)
}

func (r *Radio) transmitLocked(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("transmit: empty payload")
	}
	if len(payload) > int(r.cfg.MaxPayloadLen) {
		return fmt.Errorf("transmit: %w: payload %d exceeds max %d",
			ErrConfigSequence, len(payload), r.cfg.MaxPayloadLen)
	}

	r.state = StateConfiguringTx
	err := func() error {
		if err := r.dev.WriteBuffer(r.cfg.TxBaseAddress, payload); err != nil {
			return err
		}
		if err := r.applyModulation(); err != nil {
			return err
		}
		if err := r.applyPacketParams(byte(len(payload))); err != nil {
			return err
		}
		if err := r.armIrq(IrqTxDone | IrqTimeout); err != nil {
			return err
		}
		if err := r.checkArmReady(); err != nil {
			return err
		}
		return r.dev.SetTx(0)
	}()
	if err != nil {
		r.failArm(err)
		return fmt.Errorf("transmit: %w", err)
	}

	r.lastTx = append(r.lastTx[:0], payload...)
	r.state = StateTransmitting
	return nil
}

// StartReceive applies the RX configuration sized to the maximum acceptable
// payload and arms the receiver. timeout zero is single-shot with the chip
// default window; negative means continuous reception.
func (r *Radio) StartReceive(timeout RxTimeout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStandby:
	case StateUninitialized:
		return fmt.Errorf("receive: %w: Init not called", ErrConfigSequence)
	case StateFault:
		return fmt.Errorf("receive: %w: %v", ErrRadioFault, r.faultReason)
	default:
		return fmt.Errorf("receive: radio busy in state %s", r.state)
	}

	r.rxTimeoutTicks = timeout.ticks()
	r.retriesUsed = 0
	if err := r.receiveLocked(); err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// receiveLocked runs the RX arming sequence with the previously chosen
// timeout. Used both for the initial arm and for re-arms after events.
func (r *Radio) receiveLocked() error {
	r.state = StateConfiguringRx
	err := func() error {
		if err := r.applyModulation(); err != nil {
			return err
		}
		if err := r.applyPacketParams(r.cfg.MaxPayloadLen); err != nil {
			return err
		}
		if err := r.armIrq(IrqRxDone | IrqTimeout | IrqHeaderErr | IrqCrcErr); err != nil {
			return err
		}
		if err := r.checkArmReady(); err != nil {
			return err
		}
		return r.dev.SetRx(r.rxTimeoutTicks)
	}()
	if err != nil {
		r.failArm(err)
		return err
	}
	r.state = StateReceiving
	return nil
}

// failArm decides where a failed arm sequence leaves the radio: a bus that
// stopped responding is a fault, anything else drops back to Standby and
// propagates to the caller.
func (r *Radio) failArm(err error) {
	if errors.Is(err, ErrBusTimeout) {
		r.enterFault(err)
		return
	}
	r.state = StateStandby
}

// Abort cancels the current radio activity by commanding standby. The chip
// honours this by dropping out of TX or RX; the driver models it as an
// explicit transition rather than abandoning in-flight state.
func (r *Radio) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateConfiguringTx, StateTransmitting, StateConfiguringRx, StateReceiving:
	default:
		return nil
	}
	if err := r.dev.SetStandby(StandbyRC); err != nil {
		return fmt.Errorf("abort: %w", err)
	}
	if err := r.dev.ClearIrqStatus(IrqAll); err != nil {
		return fmt.Errorf("abort: %w", err)
	}
	r.state = StateStandby
	return nil
}

// handleReading processes one IRQ reading from the dispatcher.
func (r *Radio) handleReading(rd irqReading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rd.err != nil {
		// The edge handler could not read or clear the latch. A dead
		// busy line is unrecoverable without a reset.
		r.log("sx1262: irq read failed: %v", rd.err)
		if errors.Is(rd.err, ErrBusTimeout) {
			r.enterFault(rd.err)
		}
		return
	}
	if r.state == StateFault {
		return
	}

	r.surfaceEvents(rd.raw)

	// Tie-break for simultaneous bits: a done event supersedes a stale
	// timeout arming, and data-available is serviced before error
	// bookkeeping. RxDone > TxDone > Timeout > error bits.
	switch {
	case rd.raw&IrqRxDone != 0:
		r.handleRxDone(rd.raw)
	case rd.raw&IrqTxDone != 0:
		r.handleTxDone()
	case rd.raw&IrqTimeout != 0:
		r.handleTimeout()
	case rd.raw&(IrqCrcErr|IrqHeaderErr) != 0:
		r.noteChipError(fmt.Errorf("chip reported irq 0x%04X", rd.raw))
	}
}

func (r *Radio) handleRxDone(raw uint16) {
	if raw&(IrqCrcErr|IrqHeaderErr) != 0 {
		// The packet arrived corrupt; count it and listen again
		// instead of delivering garbage.
		r.noteChipError(fmt.Errorf("corrupt reception, irq 0x%04X", raw))
		return
	}

	res, err := r.readPacket()
	if err != nil {
		r.log("sx1262: rx readout failed: %v", err)
		r.noteChipError(err)
		return
	}
	if err := r.dev.SetStandby(StandbyRC); err != nil {
		r.noteChipError(err)
		return
	}
	r.state = StateStandby
	r.errStreak = 0
	r.retriesUsed = 0

	select {
	case r.rxCh <- res:
	default:
		r.log("sx1262: rx channel full, dropping %d byte packet", res.Length)
	}

	switch r.mode {
	case ModeEcho:
		if err := r.transmitLocked(res.Payload); err != nil {
			r.log("sx1262: echo transmit failed: %v", err)
		}
	case ModeReceiveOnly, ModeStrobeTx:
		// Stay in standby; the next arm is the application's call.
	}
}

// readPacket reads the buffer descriptor and then exactly the chip-reported
// number of bytes from the RX partition.
func (r *Radio) readPacket() (RxResult, error) {
	st, err := r.dev.GetRxBufferStatus()
	if err != nil {
		return RxResult{}, err
	}
	if st.PayloadLength > r.cfg.MaxPayloadLen {
		return RxResult{}, fmt.Errorf("%w: reported length %d exceeds max %d",
			ErrUnexpectedReply, st.PayloadLength, r.cfg.MaxPayloadLen)
	}
	payload, err := r.dev.ReadBuffer(st.StartOffset, int(st.PayloadLength))
	if err != nil {
		return RxResult{}, err
	}
	res := RxResult{
		Payload:     payload,
		Length:      st.PayloadLength,
		StartOffset: st.StartOffset,
	}
	if ps, err := r.dev.GetPacketStatus(); err == nil {
		res.RssiDBm = ps.RssiDBm
		res.SnrDB = ps.SnrDB
	}
	return res, nil
}

func (r *Radio) handleTxDone() {
	r.state = StateStandby
	r.errStreak = 0

	switch r.mode {
	case ModeEcho:
		if err := r.receiveLocked(); err != nil {
			r.log("sx1262: rx re-arm failed: %v", err)
		}
	case ModeReceiveOnly:
		// Pure TX use stays in standby after completion.
	case ModeStrobeTx:
		if len(r.lastTx) == 0 {
			return
		}
		if err := r.transmitLocked(r.lastTx); err != nil {
			r.log("sx1262: strobe retransmit failed: %v", err)
		}
	}
}

// handleTimeout treats an RX (or TX) timeout as the radio's normal "nothing
// arrived" behaviour: re-arm and keep listening until the retry budget runs
// out, then fault.
func (r *Radio) handleTimeout() {
	if r.retriesUsed >= r.cfg.RetryBudget {
		r.enterFault(fmt.Errorf("%w: %d consecutive timeouts", ErrTimeout, r.retriesUsed+1))
		return
	}
	r.retriesUsed++
	if err := r.receiveLocked(); err != nil {
		r.log("sx1262: timeout re-arm failed: %v", err)
	}
}

// noteChipError counts a recoverable chip-reported error, escalating to
// Fault once the consecutive-error threshold is crossed; below the
// threshold the receiver is re-armed.
func (r *Radio) noteChipError(cause error) {
	r.errStreak++
	r.log("sx1262: recoverable error %d/%d: %v", r.errStreak, r.cfg.ErrorThreshold, cause)
	if r.errStreak > r.cfg.ErrorThreshold {
		r.enterFault(cause)
		return
	}
	if err := r.receiveLocked(); err != nil {
		r.log("sx1262: error re-arm failed: %v", err)
	}
}

// enterFault is terminal until Reset. The chip is parked in standby best
// effort so it stops radiating.
func (r *Radio) enterFault(reason error) {
	r.state = StateFault
	r.faultReason = reason
	r.log("sx1262: entering fault: %v", reason)
	if err := r.dev.SetStandby(StandbyRC); err != nil {
		r.log("sx1262: standby on fault failed: %v", err)
	}
}
