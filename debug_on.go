// SPDX-License-Identifier: Apache-2.0

//go:build debug

package arena

// debugEnabled turns on bounds checks, the aligned block registry,
// pointer-free type checks and allocation tracking.
const debugEnabled = true
