package controller_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/opstate/controller"
	"github.com/tailored-agentic-units/opstate/observability"
	"github.com/tailored-agentic-units/opstate/state"
)

// nextState receives one accepted transition or fails the test.
func nextState[T any](t *testing.T, sub *controller.Subscription[T]) state.State[T] {
	t.Helper()
	select {
	case st, ok := <-sub.States():
		if !ok {
			t.Fatal("state channel closed while waiting for a transition")
		}
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a transition")
	}
	return state.State[T]{}
}

// eventually polls cond until it holds or the deadline expires.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// manual is a Config without auto-start, for tests that drive transitions
// themselves.
func manual() *controller.Config {
	return &controller.Config{WatchBuffer: 16}
}

// recordObserver captures emitted events for assertions.
type recordObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recordObserver) OnEvent(_ context.Context, event observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordObserver) byType(typ observability.EventType) []observability.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []observability.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestFetcher_AutoStartSequence(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release
		return "X", nil
	}

	f := controller.NewFetcher(context.Background(), fetch, nil)
	defer f.Close()

	if st := f.State(); !st.IsLoading() || st.HasData() {
		t.Fatalf("initial state = %v, want loading without data", st)
	}

	sub := f.Watch()
	defer sub.Cancel()
	close(release)

	st := nextState(t, sub)
	if !st.IsSuccess() || st.MustData() != "X" {
		t.Errorf("state after fetch = %v, want success(X)", st)
	}
}

func TestFetcher_NoAutoStart(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) {
		t.Error("fetch invoked without Load")
		return "", nil
	}

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	if st := f.State(); !st.IsIdle() || st.HasData() {
		t.Errorf("initial state = %v, want idle without data", st)
	}
}

func TestFetcher_CachedDataRetention(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.SetSuccess("X")
	sub := f.Watch()
	defer sub.Cancel()

	f.Load(context.Background(), true)

	st := nextState(t, sub)
	if !st.IsLoading() || st.DataOr("") != "X" {
		t.Errorf("state = %v, want loading with stale data X", st)
	}

	st = nextState(t, sub)
	if !st.IsError() || st.Message() != "boom" || st.DataOr("") != "X" {
		t.Errorf("state = %v, want error(boom) retaining data X", st)
	}
}

func TestFetcher_LoadWithoutCachedData(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.SetSuccess("X")
	sub := f.Watch()
	defer sub.Cancel()

	f.Load(context.Background(), false)

	st := nextState(t, sub)
	if !st.IsLoading() || st.HasData() {
		t.Errorf("state = %v, want loading without data", st)
	}

	st = nextState(t, sub)
	if !st.IsError() || st.HasData() {
		t.Errorf("state = %v, want error without data", st)
	}
}

func TestFetcher_LastInvocationWins(t *testing.T) {
	var calls atomic.Int32
	started := make(chan int, 2)
	firstGate := make(chan string)
	secondGate := make(chan string)

	fetch := func(ctx context.Context) (string, error) {
		switch calls.Add(1) {
		case 1:
			started <- 1
			return <-firstGate, nil
		default:
			started <- 2
			return <-secondGate, nil
		}
	}

	var successes atomic.Int32
	hooks := controller.Hooks[string]{
		OnSuccess: func(state.State[string]) { successes.Add(1) },
	}

	f := controller.NewFetcher(context.Background(), fetch, manual(), controller.WithHooks(hooks))
	defer f.Close()

	f.Load(context.Background(), true)
	<-started
	f.Load(context.Background(), true)
	<-started

	// The second (current) invocation completes first.
	secondGate <- "B"
	eventually(t, func() bool {
		return f.State().IsSuccess() && f.State().DataOr("") == "B"
	}, "second invocation's result was not applied")

	// The first invocation resolves later; its result must be discarded.
	firstGate <- "A"
	time.Sleep(20 * time.Millisecond)

	if st := f.State(); st.DataOr("") != "B" {
		t.Errorf("state = %v, want success(B) after stale completion", st)
	}
	if got := successes.Load(); got != 1 {
		t.Errorf("OnSuccess invoked %d times, want 1", got)
	}
}

func TestFetcher_RepeatedLoadingSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetch := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	var loadings atomic.Int32
	hooks := controller.Hooks[string]{
		OnLoading: func(state.State[string]) { loadings.Add(1) },
	}

	f := controller.NewFetcher(ctx, fetch, manual(), controller.WithHooks(hooks))
	defer f.Close()

	f.Load(ctx, true)
	f.Load(ctx, true)

	if got := loadings.Load(); got != 1 {
		t.Errorf("OnLoading invoked %d times for equal loading states, want 1", got)
	}
}

func TestFetcher_SetIdleIdempotent(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }

	var idles atomic.Int32
	hooks := controller.Hooks[string]{
		OnIdle: func(state.State[string]) { idles.Add(1) },
	}

	f := controller.NewFetcher(context.Background(), fetch, manual(), controller.WithHooks(hooks))
	defer f.Close()

	f.SetSuccess("Y")

	f.SetIdle(true)
	st := f.State()
	if !st.IsIdle() || st.DataOr("") != "Y" {
		t.Fatalf("state = %v, want idle retaining data Y", st)
	}

	f.SetIdle(true)
	if got := idles.Load(); got != 1 {
		t.Errorf("OnIdle invoked %d times, want 1 (second SetIdle is a no-op)", got)
	}
	if got := f.State(); !got.Equal(st) {
		t.Errorf("state changed by idempotent SetIdle: %v", got)
	}
}

func TestFetcher_SetIdleDropsData(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.SetSuccess("Y")
	f.SetIdle(false)

	if st := f.State(); !st.IsIdle() || st.HasData() {
		t.Errorf("state = %v, want idle without data", st)
	}
}

func TestFetcher_PanicRecovered(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) {
		panic("kaboom")
	}

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.Load(context.Background(), true)

	eventually(t, func() bool { return f.State().IsError() }, "panicking fetch did not produce an error state")

	st := f.State()
	if !strings.Contains(st.Message(), "panic: kaboom") {
		t.Errorf("message = %q, want panic message", st.Message())
	}
	if st.Trace() == "" {
		t.Error("error state carries no stack trace")
	}
	if st.Cause() == nil {
		t.Error("error state carries no cause")
	}
}

func TestFetcher_ErrorFormatter(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}

	format := func(err error) string { return "fetch failed: " + err.Error() }

	f := controller.NewFetcher(context.Background(), fetch, manual(), controller.WithErrorFormatter[string](format))
	defer f.Close()

	f.Load(context.Background(), true)

	eventually(t, func() bool { return f.State().IsError() }, "fetch failure did not produce an error state")
	if got := f.State().Message(); got != "fetch failed: boom" {
		t.Errorf("message = %q, want formatter output", got)
	}
}

func TestFetcher_SetError(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }
	cause := errors.New("boom")

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.SetSuccess("v")
	f.SetError(cause, "goroutine 1 [running]", "")

	st := f.State()
	if !st.IsError() || st.Cause() != cause {
		t.Fatalf("state = %v, want error with original cause", st)
	}
	if st.Message() != "boom" {
		t.Errorf("message = %q, want formatter default %q", st.Message(), "boom")
	}
	if st.Trace() != "goroutine 1 [running]" {
		t.Errorf("trace = %q, want injected trace", st.Trace())
	}
	if st.DataOr("") != "v" {
		t.Errorf("payload = %q, want retained data v", st.DataOr(""))
	}
}

func TestFetcher_SetEmpty(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }

	f := controller.NewFetcher(context.Background(), fetch, manual())
	defer f.Close()

	f.SetSuccess("v")
	f.SetEmpty()

	st := f.State()
	if !st.IsEmpty() || st.HasData() {
		t.Errorf("state = %v, want empty success without data", st)
	}
}

func TestFetcher_PostTeardownSilence(t *testing.T) {
	started := make(chan struct{})
	release := make(chan string, 1)
	fetch := func(ctx context.Context) (string, error) {
		close(started)
		return <-release, nil
	}

	var successes atomic.Int32
	hooks := controller.Hooks[string]{
		OnSuccess: func(state.State[string]) { successes.Add(1) },
	}

	f := controller.NewFetcher(context.Background(), fetch, manual(), controller.WithHooks(hooks))

	f.Load(context.Background(), true)
	<-started

	before := f.State()
	f.Close()
	release <- "late"

	time.Sleep(20 * time.Millisecond)
	if got := f.State(); !got.Equal(before) {
		t.Errorf("state mutated after Close: %v", got)
	}
	if got := successes.Load(); got != 0 {
		t.Errorf("OnSuccess invoked %d times after Close, want 0", got)
	}
	if f.Active() {
		t.Error("Active() = true after Close")
	}
}

func TestFetcher_RebroadcastPayloadEvents(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }

	tests := []struct {
		name        string
		rebroadcast bool
		wantPayload bool
	}{
		{name: "payload included", rebroadcast: true, wantPayload: true},
		{name: "tags only", rebroadcast: false, wantPayload: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordObserver{}
			f := controller.NewFetcher(context.Background(), fetch,
				&controller.Config{Rebroadcast: tt.rebroadcast, WatchBuffer: 16},
				controller.WithObserver[string](obs))
			defer f.Close()

			f.SetSuccess("x")

			transitions := obs.byType(controller.EventTransition)
			if len(transitions) == 0 {
				t.Fatal("no transition events recorded")
			}
			last := transitions[len(transitions)-1]
			v, ok := last.Data["data"]
			if ok != tt.wantPayload {
				t.Fatalf("payload present = %v, want %v (event data: %v)", ok, tt.wantPayload, last.Data)
			}
			if tt.wantPayload && v != "x" {
				t.Errorf("payload = %v, want x", v)
			}
			if last.Data["kind"] != "success" {
				t.Errorf("kind = %v, want success", last.Data["kind"])
			}
		})
	}
}

func TestFetcher_SetAfterCloseNoOp(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "", nil }

	f := controller.NewFetcher(context.Background(), fetch, manual())
	f.Close()

	f.SetSuccess("x")
	f.SetIdle(true)
	f.SetError(errors.New("boom"), "", "")
	f.Load(context.Background(), true)

	if st := f.State(); !st.IsIdle() {
		t.Errorf("state = %v after post-close mutations, want untouched idle", st)
	}
}
