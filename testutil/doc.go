// Package testutil provides fakes and data builders for pipeline tests.
//
// MockInlet replays scripted pulls, MockSink records what the acquirer hands
// it and StopFlag is a settable stop flag. They are all safe
// for concurrent use.
//
// Prefer the real transports where they are cheap: the simulator runs in
// process and the NATS transport has a testcontainers harness in natsclient.
package testutil
