package main

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordSpeaker struct {
	got  []string
	fail string
}

func (r *recordSpeaker) Speak(_ context.Context, text string) error {
	if text == r.fail {
		return errors.New("speech down")
	}
	r.got = append(r.got, text)
	return nil
}

func TestSpeakLinesSkipsBlank(t *testing.T) {
	s := &recordSpeaker{}
	n, err := speakLines(context.Background(), s, strings.NewReader("hello\n\n  \n  world  \n"))
	if err != nil {
		t.Fatalf("speakLines: %v", err)
	}
	if n != 2 || len(s.got) != 2 || s.got[0] != "hello" || s.got[1] != "world" {
		t.Errorf("sent %d, got %v", n, s.got)
	}
}

func TestSpeakLinesStopsOnError(t *testing.T) {
	s := &recordSpeaker{fail: "two"}
	n, err := speakLines(context.Background(), s, strings.NewReader("one\ntwo\nthree\n"))
	if err == nil || n != 1 {
		t.Errorf("n = %d, err = %v; want 1 and an error", n, err)
	}
}

func TestSpeakLinesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := speakLines(ctx, &recordSpeaker{}, strings.NewReader("one\n")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q", got)
	}
}
