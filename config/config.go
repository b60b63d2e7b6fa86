/*
 * MIT License
 *
 * Copyright (c) 2026 Yogi Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package config is the shape the out-of-scope configuration loader (JSON +
// schema + CLI overlay, spec.md §1) hands to the core. It is a plain,
// validated struct: loading it from JSON/CLI is someone else's job.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Infinite marks a timeout/interval that never expires, per spec §6.
const Infinite time.Duration = -1

// Queue size bounds a branch's tx_queue_size/rx_queue_size clamp to,
// mirroring spec §6's "clamped to [MIN_TX, MAX_TX]" / "[MIN_RX, MAX_RX]".
const (
	MinTxQueueSize = 64 * 1024
	MaxTxQueueSize = 64 * 1024 * 1024
	MinRxQueueSize = 64 * 1024
	MaxRxQueueSize = 64 * 1024 * 1024
)

// AdvertisingInterfaces entries beyond concrete names/MACs.
const (
	IfaceAll       = "all"
	IfaceLocalhost = "localhost"
)

// Config is the validated set of spec §6 keys a local branch is
// constructed from.
type Config struct {
	Name             string        `validate:"required"`
	Description      string        ``
	NetworkName      string        `validate:"required"`
	NetworkPassword  string        ``
	Path             string        `validate:"required"`
	AdvertisingIface []string      `validate:"required,min=1"`
	AdvertisingAddr  string        `validate:"required,ip"`
	AdvertisingPort  uint16        `validate:"required"`
	AdvertisingIntvl time.Duration ``
	Timeout          time.Duration ``
	TxQueueSize      int           ``
	RxQueueSize      int           ``
	GhostMode        bool          ``
	TCPHost          string        `` // "" binds every interface
	TCPPort          uint16        `` // 0 picks an ephemeral port
}

// Validate checks the struct tags above and normalizes queue sizes into
// their configured clamp range.
func Validate(c *Config) error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	c.TxQueueSize = clamp(c.TxQueueSize, MinTxQueueSize, MaxTxQueueSize)
	c.RxQueueSize = clamp(c.RxQueueSize, MinRxQueueSize, MaxRxQueueSize)
	return nil
}

func clamp(v, lo, hi int) int {
	if v <= 0 {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Discovering reports whether the advertiser/receiver pair runs for this
// config: true for a positive interval and for Infinite (with Infinite the
// advertiser never sends, so the branch only discovers peers), false for
// any other value, which turns off both advertising and discovery.
func (c *Config) Discovering() bool {
	return c.AdvertisingIntvl > 0 || c.AdvertisingIntvl == Infinite
}
