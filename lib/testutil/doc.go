// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for netplay packages.
//
// [RequireReceive], [RequireClosed] and [RequireEventually] wrap the
// select-with-timeout pattern so that individual tests never hang on a
// lost callback from the WebSocket reader or pion. They are the only
// place in the test suite where real wall-clock timeouts appear; timer
// driven production code is tested with lib/clock's FakeClock instead.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
