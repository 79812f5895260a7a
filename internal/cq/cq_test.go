package cq

import (
	"errors"
	"testing"
)

func TestQueue(t *testing.T) {
	q := New[int]()
	defer q.Stop()

	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatal("push failed")
		}
	}

	var got []int
	for len(got) < 10 {
		batch := <-q.Get()
		if len(batch) == 0 {
			t.Fatal("empty batch")
		}
		got = append(got, batch...)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%v] = %v", i, v)
		}
	}
}

func TestPushAfterStop(t *testing.T) {
	q := New[int]()
	q.Stop()
	if q.Push(1) {
		t.Fatal("push succeeded on a stopped queue")
	}
}

func TestFlush(t *testing.T) {
	var ran int
	errs := Flush([]func() error{
		func() error { ran++; return nil },
		func() error { ran++; return errors.New("one") },
		func() error { ran++; return errors.New("two") },
	})
	if ran != 3 || len(errs) != 2 {
		t.Fatalf("ran %v, errs %v", ran, errs)
	}
}
