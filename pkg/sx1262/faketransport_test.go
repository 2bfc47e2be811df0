package sx1262

import (
	"sync"
	"testing"
	"time"
)

// fakeTransport implements Transport for testing. Outbound frames are
// recorded; replies are scripted per opcode and copied into the tail of the
// inbound buffer, which is where Query expects reply payloads.
type fakeTransport struct {
	mu        sync.Mutex
	frames    [][]byte
	replies   map[byte][][]byte
	busyStuck bool
	resets    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(map[byte][][]byte)}
}

func (f *fakeTransport) Exchange(out, in []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	frame := make([]byte, len(out))
	copy(frame, out)
	f.frames = append(f.frames, frame)

	q := f.replies[out[0]]
	if len(q) > 0 {
		reply := q[0]
		f.replies[out[0]] = q[1:]
		if len(reply) <= len(in) {
			copy(in[len(in)-len(reply):], reply)
		}
	}
	return nil
}

func (f *fakeTransport) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busyStuck
}

func (f *fakeTransport) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

// setReply queues one reply payload for the next command with this opcode.
func (f *fakeTransport) setReply(opcode byte, payload ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[opcode] = append(f.replies[opcode], payload)
}

// framesFor returns all recorded frames starting with the given opcode.
func (f *fakeTransport) framesFor(opcode byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, fr := range f.frames {
		if fr[0] == opcode {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) clearFrames() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// waitForState polls until the radio reaches the wanted state or the
// deadline passes.
func waitForState(t *testing.T, r *Radio, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("radio state = %s, want %s (fault: %v)", r.State(), want, r.FaultReason())
}

// newTestRadio builds an initialised, started radio over a fake transport.
func newTestRadio(t *testing.T, mode Mode, tweak func(*Config)) (*Radio, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	cfg := DefaultConfig()
	cfg.BusyTimeout = 50 * time.Millisecond
	cfg.BusyPoll = time.Millisecond
	if tweak != nil {
		tweak(&cfg)
	}
	r, err := New(tr, cfg, mode)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	r.Start()
	t.Cleanup(r.Close)
	return r, tr
}

// injectIrq scripts an IRQ status read and fires the edge handler, as the
// DIO1 watcher would.
func injectIrq(r *Radio, tr *fakeTransport, mask uint16) {
	tr.setReply(CmdGetIrqStatus, byte(mask>>8), byte(mask))
	r.OnEdge()
}
