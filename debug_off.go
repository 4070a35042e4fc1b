// SPDX-License-Identifier: Apache-2.0

//go:build !debug

package arena

const debugEnabled = false
