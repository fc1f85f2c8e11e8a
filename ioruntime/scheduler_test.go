//go:build linux

package ioruntime

import (
	"context"
	"testing"
)

func TestSchedulerScheduleDeliversValueInline(t *testing.T) {
	skipIfNoIOURing(t)

	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	var got bool
	r := recorderReceiver{onValue: func() { got = true }}

	op := c.Scheduler().Schedule().Connect(context.Background(), r)
	op.Start()

	if err := c.RunUntilEmpty(); err != nil {
		t.Fatalf("RunUntilEmpty() error = %v", err)
	}
	if !got {
		t.Error("Schedule() sender never delivered a value")
	}
}

func TestSchedulerScheduleStoppedOnCanceledContext(t *testing.T) {
	skipIfNoIOURing(t)

	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stopped bool
	r := recorderReceiver{onStopped: func() { stopped = true }}

	op := c.Scheduler().Schedule().Connect(ctx, r)
	op.Start()

	if err := c.RunUntilEmpty(); err != nil {
		t.Fatalf("RunUntilEmpty() error = %v", err)
	}
	if !stopped {
		t.Error("Schedule() sender did not report Stopped() for an already-canceled context")
	}
}

type recorderReceiver struct {
	onValue   func()
	onError   func(error)
	onStopped func()
}

func (r recorderReceiver) Value(struct{}) {
	if r.onValue != nil {
		r.onValue()
	}
}

func (r recorderReceiver) Error(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

func (r recorderReceiver) Stopped() {
	if r.onStopped != nil {
		r.onStopped()
	}
}
