// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay implements the message core of a CometChat / Discord /
// Telegram relay.
//
// Every inbound platform message is converted into one canonical [Message],
// checked by the [LoopGuard], matched against the static [Registry] of
// bridges and fanned out by the [Router] to the [Sender] of every other
// platform in the bridge.
//
// # Core Types
//
// [Normalizer] absorbs the shape differences between Discord gateway
// messages, Telegram Bot API updates and CometChat webhooks. One extraction
// function exists per platform; [Normalizer.Normalize] dispatches on the
// platform tag.
//
// [Registry] holds the bridges loaded at startup. It is never mutated after
// construction and is shared between concurrent Route calls without locking.
//
// [Router] runs validate, loop guard, resolve and fan-out for one message and
// returns one [Delivery] per target. A failed delivery never affects its
// siblings and is never returned as an error.
//
// # Echo Prevention
//
// A message the relay posted on platform B comes back to it as a new inbound
// message from B. The loop guard drops it through several layers: the
// platform's own bot flag, configured relay identities, a denylist of bot
// display-name fragments and the [EchoCache] of recently delivered message
// ids. These layers must not be simplified or removed.
//
// # Sub-packages
//
//   - telegramfmt converts markdown to Telegram HTML.
//   - entityfmt converts Telegram message entities to markdown.
package relay
