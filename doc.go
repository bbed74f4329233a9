// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package grouplock implements a distributed advisory-lock protocol that runs
// as a layer inside a group-communication stack.
//
// Members of a group cooperate to serialize access to named mutual-exclusion
// locks: at most one member (more precisely, one logical "thread" inside one
// member, see CallerID) holds a given named lock at any moment, and
// contending requesters are queued in arrival order until the current holder
// releases or leaves the group.
//
// ## Overview
//
// The package is split into two coupled state machines:
//
//  1. ServerLock, the authoritative arbiter for one lock name: it tracks the
//     current owner and a FIFO queue of pending requesters, and survives
//     membership changes by evicting departed owners and waiters.
//
//  2. ClientLock, the requester-side handle: it exposes a standard blocking
//     mutex contract (Lock, LockContext, TryLock, TryLockTimeout, Unlock) to
//     local callers but implements it by exchanging Request messages with
//     whichever peer hosts the ServerLock for that name.
//
// A Layer owns the registries of both and dispatches events in two
// directions: Down (application calls, routed to a ClientLock, which sends
// messages to the server) and Up (incoming messages, routed to either a
// ServerLock or a ClientLock depending on message type). View changes flow
// in both directions.
//
// Routing of *which* peer hosts a lock's ServerLock is delegated to a
// PolicyHook; see the policy subpackage for the two concrete strategies
// (central coordinator, consistent-peer) described in the protocol design.
//
// The transport itself -- delivery, framing, failure detection, view
// computation -- is not part of this package; see the Sender interface
// and the memtransport subpackage for a reference in-memory implementation
// used by this package's own tests.
package grouplock
