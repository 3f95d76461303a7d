// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used across netplay.
//
// Components that schedule work or measure elapsed time hold a Clock
// field instead of calling time.Now or time.AfterFunc directly:
//
//	connection := transport.New(transport.Options{Clock: clock.Real()})
//
// Tests build a FakeClock and drive it explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	connection := transport.New(transport.Options{Clock: fake})
//	connection.AddSender(protocol.TypeKeys, send, 50*time.Millisecond)
//	fake.Advance(50 * time.Millisecond) // one sender tick, synchronously
//
// AfterFunc callbacks on a FakeClock run synchronously inside Advance,
// in deadline order. A callback may schedule further callbacks; those
// fire in the same Advance call when their deadline is still within the
// advanced window, which is how self-rescheduling sender loops are
// exercised deterministically.
package clock
