package headless

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/shm/shmimage"
)

func next(t *testing.T, b *Backend) backend.Event {
	t.Helper()

	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestOutputs(t *testing.T) {
	b := New(backend.Options{Outputs: 2, Size: image.Pt(64, 32)})
	defer b.Close()

	err := b.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var outs []*backend.Output
	for i := 0; i < 2; i++ {
		ev, ok := next(t, b).(backend.OutputAdded)
		if !ok {
			t.Fatalf("event %v is %T", i, ev)
		}
		if ev.Output.Mode.Size != image.Pt(64, 32) {
			t.Fatalf("size = %v", ev.Output.Mode.Size)
		}
		outs = append(outs, ev.Output)
	}
	if outs[0].Name == outs[1].Name {
		t.Fatalf("duplicate name %q", outs[0].Name)
	}

	b.RemoveOutput(outs[0])
	if ev, ok := next(t, b).(backend.OutputRemoved); !ok || ev.Output != outs[0] {
		t.Fatalf("got %#v", ev)
	}

	err = b.Present(outs[0], shmimage.NewARGB8888(image.Rect(0, 0, 64, 32)))
	if !errors.Is(err, backend.ErrUnknownOutput) {
		t.Fatalf("present to removed output: %v", err)
	}
}

func TestPresent(t *testing.T) {
	b := New(backend.Options{Size: image.Pt(4, 4)})
	defer b.Close()
	b.SetManual(true)
	b.Start(context.Background())
	out := next(t, b).(backend.OutputAdded).Output

	img := shmimage.NewARGB8888(image.Rect(0, 0, 4, 4))
	img.SetARGB8888(1, 2, 0xFF123456)

	err := b.Present(out, img)
	if err != nil {
		t.Fatal(err)
	}
	err = b.Present(out, img)
	if !errors.Is(err, backend.ErrBusy) {
		t.Fatalf("second present: %v", err)
	}

	img.SetARGB8888(1, 2, 0)
	frame, n := b.Frame(out)
	if n != 1 || frame.ARGB8888At(1, 2) != 0xFF123456 {
		t.Fatalf("frame %v = %#x", n, frame.ARGB8888At(1, 2))
	}

	if !b.Complete(out) {
		t.Fatal("no frame to complete")
	}
	if ev, ok := next(t, b).(backend.FrameDone); !ok || ev.Output != out {
		t.Fatalf("got %#v", ev)
	}
	if b.Complete(out) {
		t.Fatal("completed a frame twice")
	}
}

func TestAutomaticCompletion(t *testing.T) {
	b := New(backend.Options{Size: image.Pt(4, 4)})
	defer b.Close()
	b.Start(context.Background())
	out := next(t, b).(backend.OutputAdded).Output

	err := b.Present(out, shmimage.NewARGB8888(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := next(t, b).(backend.FrameDone); !ok {
		t.Fatal("frame did not complete")
	}
}

func TestSession(t *testing.T) {
	b := New(backend.Options{Size: image.Pt(4, 4)})
	defer b.Close()
	b.Start(context.Background())
	out := next(t, b).(backend.OutputAdded).Output

	err := b.SwitchVT(2)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := next(t, b).(backend.SessionPaused); !ok {
		t.Fatal("session not paused")
	}
	err = b.Present(out, shmimage.NewARGB8888(image.Rect(0, 0, 4, 4)))
	if !errors.Is(err, backend.ErrPaused) {
		t.Fatalf("present while paused: %v", err)
	}

	b.Resume()
	if _, ok := next(t, b).(backend.SessionResumed); !ok {
		t.Fatal("session not resumed")
	}
}

func TestPauseDiscardsFrame(t *testing.T) {
	b := New(backend.Options{Size: image.Pt(4, 4)})
	defer b.Close()
	b.SetManual(true)
	b.Start(context.Background())
	out := next(t, b).(backend.OutputAdded).Output

	err := b.Present(out, shmimage.NewARGB8888(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatal(err)
	}
	b.Pause()
	if _, ok := next(t, b).(backend.SessionPaused); !ok {
		t.Fatal("session not paused")
	}
	if b.Pending(out) || b.Complete(out) {
		t.Fatal("frame survived losing the session")
	}

	b.Resume()
	if _, ok := next(t, b).(backend.SessionResumed); !ok {
		t.Fatal("session not resumed")
	}
	err = b.Present(out, shmimage.NewARGB8888(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("present after resume: %v", err)
	}
}

func TestInput(t *testing.T) {
	b := New(backend.Options{})
	defer b.Close()

	dev := b.AddDevice("mouse", input.CapPointer)
	ev, ok := next(t, b).(backend.Input)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	if _, ok := ev.Event.(input.DeviceAdded); !ok || ev.Event.EventHeader().Device != dev {
		t.Fatalf("got %#v", ev.Event)
	}

	b.Inject(input.PointerMotion{Header: input.Header{Device: dev}, DX: 1, DY: 2})
	ev = next(t, b).(backend.Input)
	if m := ev.Event.(input.PointerMotion); m.DX != 1 || m.DY != 2 {
		t.Fatalf("motion = %+v", m)
	}
}
