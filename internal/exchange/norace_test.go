//go:build !race

// SPDX-License-Identifier: MIT
package exchange

const raceEnabled = false
