package main

import "testing"

// These cases exercise only the argument-count validation each subcommand
// performs before it ever starts Prometheus or opens a socket, so they run
// without touching the network, mirroring the teacher's own main_test.go
// ("make sure it doesn't immediately crash") scaled to a subcommand surface
// instead of a single entry point.

func TestRunGenerateRequiresURL(t *testing.T) {
	if err := runGenerate(nil); err == nil {
		t.Fatal("expected an error with no urls")
	}
}

func TestRunReceiveRequiresURL(t *testing.T) {
	if err := runReceive(nil); err == nil {
		t.Fatal("expected an error with no urls")
	}
}

func TestRunMReceiveRequiresExactlyOneURL(t *testing.T) {
	if err := runMReceive(nil); err == nil {
		t.Fatal("expected an error with no urls")
	}
	if err := runMReceive([]string{"srt://127.0.0.1:1", "srt://127.0.0.1:2"}); err == nil {
		t.Fatal("expected an error with two urls")
	}
}

func TestRunRouteRequiresExactlyTwoURLs(t *testing.T) {
	if err := runRoute([]string{"srt://127.0.0.1:1"}); err == nil {
		t.Fatal("expected an error with only one url")
	}
}

func TestRunForwardRequiresExactlyTwoURLs(t *testing.T) {
	if err := runForward([]string{"srt://127.0.0.1:1"}); err == nil {
		t.Fatal("expected an error with only one url")
	}
}

func TestRunSendRequiresURLAndPath(t *testing.T) {
	if err := runSend([]string{"srt://127.0.0.1:1"}); err == nil {
		t.Fatal("expected an error with a missing path")
	}
}

func TestRunFileReceiveRequiresURLAndDest(t *testing.T) {
	if err := runFileReceive([]string{"srt://127.0.0.1:1"}); err == nil {
		t.Fatal("expected an error with a missing destination")
	}
}

func TestUsageDoesNotPanic(t *testing.T) {
	usage()
}
