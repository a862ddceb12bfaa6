// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

// SetCommandsWrittenForTesting overrides the writer's record counter
// so tests can reach the int32 wraparound without writing two billion
// records.
func (w *Writer) SetCommandsWrittenForTesting(counter int32) {
	w.commandsWritten = counter
}
