package sx1262

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// firstIndex returns the position of the first recorded frame with the
// given opcode, or -1.
func (f *fakeTransport) firstIndex(opcode byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fr := range f.frames {
		if fr[0] == opcode {
			return i
		}
	}
	return -1
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// scriptRx queues the bus replies for one complete packet readout.
func scriptRx(tr *fakeTransport, payload []byte, rssiRaw, snrRaw byte) {
	tr.setReply(CmdGetRxBufferStatus, byte(len(payload)), 0x00)
	tr.setReply(CmdReadBuffer, payload...)
	tr.setReply(CmdGetPacketStatus, rssiRaw, snrRaw, 0x00)
}

func recvPacket(t *testing.T, r *Radio) RxResult {
	t.Helper()
	select {
	case pkt := <-r.Rx():
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatalf("no packet delivered (state %s, fault %v)", r.State(), r.FaultReason())
		return RxResult{}
	}
}

func TestInitAppliesBaseline(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, nil)

	if r.State() != StateStandby {
		t.Fatalf("state after Init = %s, want Standby", r.State())
	}
	if tr.resets != 1 {
		t.Errorf("resets = %d, want 1", tr.resets)
	}

	for _, opcode := range []byte{
		CmdSetStandby,
		CmdSetRegulatorMode,
		CmdSetPacketType,
		CmdSetRfFrequency,
		CmdSetPaConfig,
		CmdSetTxParams,
		CmdSetBufferBaseAddress,
		CmdClearIrqStatus,
	} {
		if len(tr.framesFor(opcode)) == 0 {
			t.Errorf("baseline never issued opcode 0x%02X", opcode)
		}
	}

	// The packet type must be selected before any LoRa-specific command.
	if tr.firstIndex(CmdSetPacketType) > tr.firstIndex(CmdSetRfFrequency) {
		t.Error("SetRfFrequency issued before SetPacketType")
	}

	bufFrames := tr.framesFor(CmdSetBufferBaseAddress)
	want := []byte{CmdSetBufferBaseAddress, DefaultTxBaseAddress, DefaultRxBaseAddress}
	if !bytes.Equal(bufFrames[0], want) {
		t.Errorf("buffer base frame = % X, want % X", bufFrames[0], want)
	}
}

func TestTransmitLifecycle(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, nil)

	if err := r.Transmit([]byte("ping")); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if r.State() != StateTransmitting {
		t.Fatalf("state = %s, want Transmitting", r.State())
	}

	wbFrames := tr.framesFor(CmdWriteBuffer)
	want := append([]byte{CmdWriteBuffer, DefaultTxBaseAddress}, "ping"...)
	if len(wbFrames) != 1 || !bytes.Equal(wbFrames[0], want) {
		t.Errorf("write buffer frames = % X, want % X", wbFrames, want)
	}
	txFrames := tr.framesFor(CmdSetTx)
	if len(txFrames) != 1 || !bytes.Equal(txFrames[0], []byte{CmdSetTx, 0, 0, 0}) {
		t.Errorf("SetTx frames = % X, want zero timeout", txFrames)
	}

	injectIrq(r, tr, IrqTxDone)
	waitForState(t, r, StateStandby)
	if r.FaultReason() != nil {
		t.Errorf("fault after clean transmit: %v", r.FaultReason())
	}
}

func TestTransmitSequenceErrors(t *testing.T) {
	// Arming before Init is a sequencing violation.
	r, err := New(newFakeTransport(), DefaultConfig(), ModeReceiveOnly)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Transmit([]byte("x")); !errors.Is(err, ErrConfigSequence) {
		t.Errorf("Transmit before Init = %v, want ErrConfigSequence", err)
	}
	if err := r.StartReceive(RxTimeoutContinuous); !errors.Is(err, ErrConfigSequence) {
		t.Errorf("StartReceive before Init = %v, want ErrConfigSequence", err)
	}

	// An oversize payload must be rejected without touching the chip.
	r2, tr := newTestRadio(t, ModeReceiveOnly, nil)
	big := make([]byte, int(DefaultConfig().MaxPayloadLen)+1)
	tr.clearFrames()
	if err := r2.Transmit(big); !errors.Is(err, ErrConfigSequence) {
		t.Errorf("oversize Transmit = %v, want ErrConfigSequence", err)
	}
	if len(tr.framesFor(CmdWriteBuffer)) != 0 {
		t.Error("oversize payload reached the buffer")
	}
	if r2.State() != StateStandby {
		t.Errorf("state = %s, want Standby after rejected transmit", r2.State())
	}

	if err := r2.Transmit(nil); err == nil {
		t.Error("empty payload accepted")
	}
}

func TestReceiveEndToEnd(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, nil)

	if err := r.StartReceive(RxTimeout(5 * time.Second)); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}
	if r.State() != StateReceiving {
		t.Fatalf("state = %s, want Receiving", r.State())
	}

	rxFrames := tr.framesFor(CmdSetRx)
	want := []byte{CmdSetRx, 0x04, 0xE2, 0x00} // 5 s = 320000 ticks
	if len(rxFrames) != 1 || !bytes.Equal(rxFrames[0], want) {
		t.Errorf("SetRx frames = % X, want % X", rxFrames, want)
	}

	// RssiPkt 80 -> -40 dBm, SnrPkt 40 -> +10 dB.
	scriptRx(tr, []byte("hello"), 80, 40)
	injectIrq(r, tr, IrqRxDone)

	pkt := recvPacket(t, r)
	if !bytes.Equal(pkt.Payload, []byte("hello")) {
		t.Errorf("payload = %q, want %q", pkt.Payload, "hello")
	}
	if pkt.Length != 5 {
		t.Errorf("length = %d, want 5", pkt.Length)
	}
	if pkt.RssiDBm != -40 || pkt.SnrDB != 10 {
		t.Errorf("rssi/snr = %d/%d, want -40/10", pkt.RssiDBm, pkt.SnrDB)
	}
	waitForState(t, r, StateStandby)
}

func TestRxDoneBeatsTxDone(t *testing.T) {
	r, tr := newTestRadio(t, ModeEcho, nil)

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}

	// Both done bits latched in the same reading. The reception must win:
	// in echo mode that means the payload comes back and the radio is left
	// transmitting the echo, not re-armed for RX as TxDone would do.
	scriptRx(tr, []byte("pong"), 80, 40)
	injectIrq(r, tr, IrqRxDone|IrqTxDone)

	pkt := recvPacket(t, r)
	if !bytes.Equal(pkt.Payload, []byte("pong")) {
		t.Errorf("payload = %q, want %q", pkt.Payload, "pong")
	}
	waitForState(t, r, StateTransmitting)
}

func TestEchoCycle(t *testing.T) {
	r, tr := newTestRadio(t, ModeEcho, nil)

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}

	scriptRx(tr, []byte("ping"), 80, 40)
	injectIrq(r, tr, IrqRxDone)

	pkt := recvPacket(t, r)
	if !bytes.Equal(pkt.Payload, []byte("ping")) {
		t.Errorf("payload = %q, want %q", pkt.Payload, "ping")
	}
	waitForState(t, r, StateTransmitting)

	// The echo transmission carries the received payload verbatim.
	wbFrames := tr.framesFor(CmdWriteBuffer)
	want := append([]byte{CmdWriteBuffer, DefaultTxBaseAddress}, "ping"...)
	if len(wbFrames) != 1 || !bytes.Equal(wbFrames[0], want) {
		t.Errorf("echo write buffer = % X, want % X", wbFrames, want)
	}

	// TxDone re-arms the receiver for the next round.
	injectIrq(r, tr, IrqTxDone)
	waitForState(t, r, StateReceiving)
	if r.FaultReason() != nil {
		t.Errorf("fault during echo cycle: %v", r.FaultReason())
	}
}

func TestStrobeRetransmit(t *testing.T) {
	r, tr := newTestRadio(t, ModeStrobeTx, nil)

	if err := r.Transmit([]byte("beep")); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	injectIrq(r, tr, IrqTxDone)

	waitFor(t, "retransmission", func() bool {
		return len(tr.framesFor(CmdWriteBuffer)) == 2
	})
	waitForState(t, r, StateTransmitting)

	wbFrames := tr.framesFor(CmdWriteBuffer)
	if !bytes.Equal(wbFrames[0], wbFrames[1]) {
		t.Errorf("retransmit differs: % X vs % X", wbFrames[0], wbFrames[1])
	}
}

func TestTimeoutRetryBudget(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, func(c *Config) {
		c.RetryBudget = 2
	})

	if err := r.StartReceive(RxTimeout(time.Second)); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}

	// Timeouts within the budget re-arm the receiver.
	for i := 1; i <= 2; i++ {
		injectIrq(r, tr, IrqTimeout)
		wantArms := 1 + i
		waitFor(t, "rx re-arm", func() bool {
			return len(tr.framesFor(CmdSetRx)) == wantArms
		})
		if r.State() != StateReceiving {
			t.Fatalf("state after timeout %d = %s, want Receiving", i, r.State())
		}
	}

	// One past the budget is terminal.
	injectIrq(r, tr, IrqTimeout)
	waitForState(t, r, StateFault)
	if err := r.FaultReason(); !errors.Is(err, ErrTimeout) {
		t.Errorf("fault reason = %v, want ErrTimeout", err)
	}
	if err := r.Transmit([]byte("x")); !errors.Is(err, ErrRadioFault) {
		t.Errorf("Transmit in fault = %v, want ErrRadioFault", err)
	}

	// Reset is the only way back.
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if r.State() != StateStandby || r.FaultReason() != nil {
		t.Errorf("after Reset: state %s, fault %v", r.State(), r.FaultReason())
	}
	if err := r.Transmit([]byte("ok")); err != nil {
		t.Errorf("Transmit after Reset error = %v", err)
	}
}

func TestCorruptReceptionRearms(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, func(c *Config) {
		c.ErrorThreshold = 1
	})

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}

	// A reception flagged with a CRC error must not surface a payload.
	injectIrq(r, tr, IrqRxDone|IrqCrcErr)
	waitFor(t, "rx re-arm after crc error", func() bool {
		return len(tr.framesFor(CmdSetRx)) == 2
	})
	if r.State() != StateReceiving {
		t.Fatalf("state = %s, want Receiving", r.State())
	}
	select {
	case pkt := <-r.Rx():
		t.Fatalf("corrupt packet delivered: %q", pkt.Payload)
	default:
	}

	// Crossing the consecutive-error threshold faults.
	injectIrq(r, tr, IrqRxDone|IrqHeaderErr)
	waitForState(t, r, StateFault)
}

func TestAbortReturnsToStandby(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, nil)

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}
	tr.clearFrames()

	if err := r.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if r.State() != StateStandby {
		t.Errorf("state = %s, want Standby", r.State())
	}
	if len(tr.framesFor(CmdSetStandby)) != 1 {
		t.Error("Abort did not command standby")
	}
	if len(tr.framesFor(CmdClearIrqStatus)) != 1 {
		t.Error("Abort did not clear the IRQ latch")
	}

	// Abort with nothing in flight is a no-op.
	tr.clearFrames()
	if err := r.Abort(); err != nil {
		t.Fatalf("idle Abort() error = %v", err)
	}
	if len(tr.framesFor(CmdSetStandby)) != 0 {
		t.Error("idle Abort touched the chip")
	}
}

func TestSpuriousEdgeIgnored(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, nil)

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}
	clears := len(tr.framesFor(CmdClearIrqStatus))

	// An edge with no latched bits: read, see zero, do nothing.
	r.OnEdge()
	time.Sleep(20 * time.Millisecond)

	if r.State() != StateReceiving {
		t.Errorf("state = %s, want Receiving", r.State())
	}
	if got := len(tr.framesFor(CmdClearIrqStatus)); got != clears {
		t.Errorf("spurious edge issued %d extra clears", got-clears)
	}
}

func TestBusDeathFaults(t *testing.T) {
	r, tr := newTestRadio(t, ModeReceiveOnly, func(c *Config) {
		c.BusyTimeout = 10 * time.Millisecond
	})

	if err := r.StartReceive(RxTimeoutContinuous); err != nil {
		t.Fatalf("StartReceive() error = %v", err)
	}

	// The busy line wedges; the next edge cannot be serviced.
	tr.mu.Lock()
	tr.busyStuck = true
	tr.mu.Unlock()

	r.OnEdge()
	waitForState(t, r, StateFault)
	if err := r.FaultReason(); !errors.Is(err, ErrBusTimeout) {
		t.Errorf("fault reason = %v, want ErrBusTimeout", err)
	}
}
